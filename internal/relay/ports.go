package relay

import (
	"context"

	"github.com/troikatech/voice-bridge/pkg/elevenlabs"
)

// AgentConn is one established connection to the conversational agent. Send
// queues an outbound caller-audio chunk and blocks once the queue is full;
// that backpressure deliberately stalls the telephony receive loop instead of
// dropping audio. Events yields agent output until the connection closes.
type AgentConn interface {
	Send(chunk string) error
	Events() <-chan elevenlabs.AgentEvent
	Close() error
}

// AgentConnector opens the agent leg for one session.
type AgentConnector interface {
	Connect(ctx context.Context) (AgentConn, error)
}

// TelephonyConn is the duplex media-stream connection owned by a session.
// Close must unblock a pending ReadMessage.
type TelephonyConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// CalleeResolver resolves a call SID to the callee's phone number.
type CalleeResolver interface {
	CalleeNumber(ctx context.Context, callSid string) (string, error)
}

// Notifier delivers the outcome notification. Failures are non-fatal to the
// call.
type Notifier interface {
	Notify(ctx context.Context, calleeNumber, reason string) error
}

// Recorder receives best-effort session lifecycle callbacks (call record
// bookkeeping). Implementations must not block the relay for long.
type Recorder interface {
	SessionStarted(ctx context.Context, streamSid, callSid, callee string)
	SessionClosed(ctx context.Context, streamSid, callSid string, notified bool)
}

// NopRecorder discards lifecycle callbacks.
type NopRecorder struct{}

func (NopRecorder) SessionStarted(context.Context, string, string, string) {}

func (NopRecorder) SessionClosed(context.Context, string, string, bool) {}
