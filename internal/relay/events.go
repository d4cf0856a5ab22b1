package relay

import "fmt"

// TelephonyEventType tags a decoded Twilio media-stream frame.
type TelephonyEventType string

const (
	TelephonyStart TelephonyEventType = "start"
	TelephonyMedia TelephonyEventType = "media"
	TelephonyStop  TelephonyEventType = "stop"
)

// TelephonyEvent is one decoded inbound frame from the Twilio media stream.
type TelephonyEvent struct {
	Type      TelephonyEventType
	StreamSid string // set on start
	CallSid   string // set on start
	Payload   string // base64 audio, set on media
}

// DecodeError marks a malformed frame that can be dropped without ending the
// session.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Reason
}

// ProtocolError marks a violation of the media-stream protocol (malformed or
// out-of-order start/stop, media before start). It is fatal to the session.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// State is the relay session lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateAgentConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAgentConnecting:
		return "agent_connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
