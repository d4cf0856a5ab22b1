package elevenlabs

import (
	"encoding/json"
	"fmt"
)

// AgentEventType tags a decoded frame from the agent connection.
type AgentEventType string

const (
	EventAudio    AgentEventType = "audio"
	EventResponse AgentEventType = "agent_response"
	EventError    AgentEventType = "error"
	EventClosed   AgentEventType = "closed"
)

// AgentEvent is one decoded inbound agent frame, or the terminal Closed event
// emitted when the connection ends.
type AgentEvent struct {
	Type  AgentEventType
	Chunk string // base64 audio, set for EventAudio
	Text  string // agent response text, set for EventResponse
	Err   error  // set for EventError
}

type agentFrame struct {
	Type  string `json:"type"`
	Audio *struct {
		Chunk string `json:"chunk"`
	} `json:"audio,omitempty"`
	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type audioChunkFrame struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// DecodeAgentFrame parses one frame from the agent WebSocket. Frames the relay
// has no use for (pings, metadata) decode to nil with no error; malformed
// frames return an error so the caller can drop them.
func DecodeAgentFrame(raw []byte) (*AgentEvent, error) {
	var frame agentFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("invalid agent frame: %w", err)
	}

	switch frame.Type {
	case "audio":
		if frame.Audio == nil || frame.Audio.Chunk == "" {
			return nil, fmt.Errorf("audio frame missing chunk")
		}
		return &AgentEvent{Type: EventAudio, Chunk: frame.Audio.Chunk}, nil
	case "agent_response":
		if frame.AgentResponseEvent == nil {
			return nil, fmt.Errorf("agent_response frame missing event body")
		}
		return &AgentEvent{Type: EventResponse, Text: frame.AgentResponseEvent.AgentResponse}, nil
	case "error":
		msg := "agent error"
		if frame.Error != nil && frame.Error.Message != "" {
			msg = frame.Error.Message
		}
		return &AgentEvent{Type: EventError, Err: fmt.Errorf("%s", msg)}, nil
	default:
		return nil, nil
	}
}

// EncodeAudioChunk wraps one base64 caller-audio chunk in the frame the agent
// expects.
func EncodeAudioChunk(chunk string) []byte {
	data, _ := json.Marshal(audioChunkFrame{UserAudioChunk: chunk})
	return data
}
