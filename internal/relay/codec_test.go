package relay

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeTelephonyFrame(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantType    TelephonyEventType
		wantDrop    bool // *DecodeError
		wantedFatal bool // *ProtocolError
	}{
		{
			name:     "valid start frame",
			raw:      `{"event":"start","start":{"streamSid":"SS1","callSid":"CA1"}}`,
			wantType: TelephonyStart,
		},
		{
			name:     "valid media frame",
			raw:      `{"event":"media","media":{"payload":"c29tZSBhdWRpbw=="}}`,
			wantType: TelephonyMedia,
		},
		{
			name:     "valid stop frame",
			raw:      `{"event":"stop"}`,
			wantType: TelephonyStop,
		},
		{
			name:     "invalid JSON",
			raw:      `{event: start`,
			wantDrop: true,
		},
		{
			name:        "start missing stream sid",
			raw:         `{"event":"start","start":{"callSid":"CA1"}}`,
			wantedFatal: true,
		},
		{
			name:        "start missing call sid",
			raw:         `{"event":"start","start":{"streamSid":"SS1"}}`,
			wantedFatal: true,
		},
		{
			name:     "media missing payload",
			raw:      `{"event":"media","media":{}}`,
			wantDrop: true,
		},
		{
			name:        "missing event field",
			raw:         `{"start":{"streamSid":"SS1","callSid":"CA1"}}`,
			wantedFatal: true,
		},
		{
			name:     "unhandled event is droppable",
			raw:      `{"event":"mark"}`,
			wantDrop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeTelephonyFrame([]byte(tt.raw))

			if tt.wantDrop {
				var decodeErr *DecodeError
				if !errors.As(err, &decodeErr) {
					t.Fatalf("DecodeTelephonyFrame() error = %v, want *DecodeError", err)
				}
				return
			}
			if tt.wantedFatal {
				var protoErr *ProtocolError
				if !errors.As(err, &protoErr) {
					t.Fatalf("DecodeTelephonyFrame() error = %v, want *ProtocolError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeTelephonyFrame() error = %v, want nil", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("DecodeTelephonyFrame() type = %v, want %v", ev.Type, tt.wantType)
			}
		})
	}
}

func TestDecodeTelephonyFrame_StartFields(t *testing.T) {
	raw := `{"event":"start","start":{"streamSid":"SS42","callSid":"CA42"}}`
	ev, err := DecodeTelephonyFrame([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeTelephonyFrame() error = %v", err)
	}
	if ev.StreamSid != "SS42" {
		t.Errorf("StreamSid = %q, want SS42", ev.StreamSid)
	}
	if ev.CallSid != "CA42" {
		t.Errorf("CallSid = %q, want CA42", ev.CallSid)
	}
}

func TestEncodeTelephonyMedia(t *testing.T) {
	data := EncodeTelephonyMedia("SS1", "YXVkaW8=")

	var frame struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("EncodeTelephonyMedia() produced invalid JSON: %v", err)
	}

	if frame.Event != "media" {
		t.Errorf("event = %q, want media", frame.Event)
	}
	if frame.StreamSid != "SS1" {
		t.Errorf("streamSid = %q, want SS1", frame.StreamSid)
	}
	if frame.Media.Payload != "YXVkaW8=" {
		t.Errorf("payload = %q, want YXVkaW8=", frame.Media.Payload)
	}
}
