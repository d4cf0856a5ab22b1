package elevenlabs

import "testing"

func TestDecodeAgentFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *AgentEvent
		wantErr bool
	}{
		{
			name: "audio frame",
			raw:  `{"type":"audio","audio":{"chunk":"YWJjZGVm"}}`,
			want: &AgentEvent{Type: EventAudio, Chunk: "YWJjZGVm"},
		},
		{
			name: "agent response frame",
			raw:  `{"type":"agent_response","agent_response_event":{"agent_response":"Let's schedule an appointment"}}`,
			want: &AgentEvent{Type: EventResponse, Text: "Let's schedule an appointment"},
		},
		{
			name: "error frame with message",
			raw:  `{"type":"error","error":{"message":"quota exceeded"}}`,
			want: &AgentEvent{Type: EventError},
		},
		{
			name: "error frame without message",
			raw:  `{"type":"error"}`,
			want: &AgentEvent{Type: EventError},
		},
		{
			name: "unknown frame types are skipped",
			raw:  `{"type":"ping","ping_event":{"event_id":1}}`,
			want: nil,
		},
		{
			name: "conversation metadata is skipped",
			raw:  `{"type":"conversation_initiation_metadata"}`,
			want: nil,
		},
		{
			name:    "invalid JSON",
			raw:     `{"type":`,
			wantErr: true,
		},
		{
			name:    "audio frame missing chunk",
			raw:     `{"type":"audio","audio":{}}`,
			wantErr: true,
		},
		{
			name:    "audio frame missing body",
			raw:     `{"type":"audio"}`,
			wantErr: true,
		},
		{
			name:    "agent_response missing event body",
			raw:     `{"type":"agent_response"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAgentFrame([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got event %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil event, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected event, got nil")
			}
			if got.Type != tt.want.Type || got.Chunk != tt.want.Chunk || got.Text != tt.want.Text {
				t.Errorf("event = %+v, want %+v", got, tt.want)
			}
			if got.Type == EventError && got.Err == nil {
				t.Error("error event has nil Err")
			}
		})
	}
}

func TestDecodeAgentFrame_ErrorMessage(t *testing.T) {
	ev, err := DecodeAgentFrame([]byte(`{"type":"error","error":{"message":"quota exceeded"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Err.Error() != "quota exceeded" {
		t.Errorf("Err = %q, want %q", ev.Err.Error(), "quota exceeded")
	}
}

func TestEncodeAudioChunk(t *testing.T) {
	got := string(EncodeAudioChunk("YWJj"))
	want := `{"user_audio_chunk":"YWJj"}`
	if got != want {
		t.Errorf("EncodeAudioChunk = %s, want %s", got, want)
	}
}
