package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/elevenlabs"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/metrics"
)

const resolveTimeout = 5 * time.Second

// Config carries the per-process relay settings shared by all sessions.
type Config struct {
	// TriggerKeywords are matched case-insensitively as substrings of agent
	// response text. Intentionally a naive heuristic, matching the behavior
	// the service replaced.
	TriggerKeywords []string

	// NotifyReason is passed to the Notifier alongside the callee number.
	NotifyReason string
}

// Deps are the collaborators a session drives. Recorder may be nil.
type Deps struct {
	Connector AgentConnector
	Resolver  CalleeResolver
	Notifier  Notifier
	Recorder  Recorder
	Registry  *Registry
}

// Session pairs one telephony media-stream connection with one agent
// connection for the duration of a call. All state transitions and the
// notification check-and-set happen under mu; the telephony receive loop and
// the agent receive loop are the only two goroutines touching that state.
type Session struct {
	telephony TelephonyConn
	deps      Deps
	cfg       Config
	log       *zap.Logger

	mu         sync.Mutex
	state      State
	id         string // streamSid, assigned by the telephony platform
	callSid    string
	callee     string // immutable once resolved
	agent      AgentConn
	notified   bool
	registered bool // this session holds the registry entry for id

	// writeMu serializes egress on the telephony connection.
	writeMu sync.Mutex

	agentLoopDone chan struct{}
}

// NewSession wraps an accepted media-stream connection. The session owns conn
// from here on.
func NewSession(conn TelephonyConn, deps Deps, cfg Config) *Session {
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}
	log := logger.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		telephony:     conn,
		deps:          deps,
		cfg:           cfg,
		log:           log,
		state:         StateCreated,
		agentLoopDone: make(chan struct{}),
	}
}

// ID returns the session identifier (empty until the start frame arrives).
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notified reports whether the outcome notification was sent.
func (s *Session) Notified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notified
}

// Run drives the telephony receive loop until the session ends. It always
// leaves the session in StateClosed with both connections closed and the
// registry entry removed.
func (s *Session) Run(ctx context.Context) {
	metrics.RecordSessionStart()
	defer metrics.RecordSessionEnd()
	defer func() {
		s.Close("telephony leg finished")
		s.mu.Lock()
		agentStarted := s.agent != nil
		s.mu.Unlock()
		if agentStarted {
			// Close shut the agent leg; wait for its loop to drain so no
			// notification or caller write runs after Run returns.
			<-s.agentLoopDone
		}
	}()

	for {
		raw, err := s.telephony.ReadMessage()
		if err != nil {
			if s.State() != StateClosing && s.State() != StateClosed {
				s.log.Info("Media stream closed by peer",
					zap.String("stream_sid", s.ID()),
					zap.Error(err),
				)
			}
			return
		}

		ev, err := DecodeTelephonyFrame(raw)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				s.log.Debug("Dropping telephony frame",
					zap.String("stream_sid", s.ID()),
					zap.String("reason", decodeErr.Reason),
				)
				continue
			}
			s.log.Warn("Media stream protocol error",
				zap.String("stream_sid", s.ID()),
				zap.Error(err),
			)
			return
		}

		switch ev.Type {
		case TelephonyStart:
			if err := s.handleStart(ctx, ev); err != nil {
				return
			}
		case TelephonyMedia:
			if err := s.handleMedia(ev); err != nil {
				return
			}
		case TelephonyStop:
			s.log.Info("Stop event received", zap.String("stream_sid", s.ID()))
			return
		}
	}
}

// handleStart registers the session, resolves the callee number, and opens the
// agent leg. A connect failure is fatal: the agent is the session's sole
// reason for existing.
func (s *Session) handleStart(ctx context.Context, ev TelephonyEvent) error {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		s.log.Warn("Duplicate start frame", zap.String("stream_sid", ev.StreamSid))
		return &ProtocolError{Reason: "start frame in state " + s.state.String()}
	}
	s.id = ev.StreamSid
	s.callSid = ev.CallSid
	s.state = StateAgentConnecting
	s.mu.Unlock()

	if err := s.deps.Registry.Register(s); err != nil {
		s.log.Warn("Session registration failed",
			zap.String("stream_sid", ev.StreamSid),
			zap.Error(err),
		)
		return err
	}
	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()

	s.log.Info("Session starting",
		zap.String("stream_sid", ev.StreamSid),
		zap.String("call_sid", ev.CallSid),
	)

	// Best-effort: a session without a resolved callee still relays audio, it
	// just can never notify.
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	callee, err := s.deps.Resolver.CalleeNumber(resolveCtx, ev.CallSid)
	cancel()
	if err != nil {
		s.log.Warn("Callee lookup failed",
			zap.String("call_sid", ev.CallSid),
			zap.Error(err),
		)
	} else {
		s.mu.Lock()
		s.callee = callee
		s.mu.Unlock()
	}

	agent, err := s.deps.Connector.Connect(ctx)
	if err != nil {
		s.log.Error("Agent connect failed",
			zap.String("stream_sid", ev.StreamSid),
			zap.Error(err),
		)
		return err
	}

	s.mu.Lock()
	if s.state != StateAgentConnecting {
		// Torn down while connecting; the handle must not outlive the session.
		s.mu.Unlock()
		agent.Close()
		return errors.New("session closed during agent connect")
	}
	s.agent = agent
	s.state = StateActive
	callee = s.callee
	s.mu.Unlock()

	recCtx, recCancel := context.WithTimeout(context.Background(), resolveTimeout)
	s.deps.Recorder.SessionStarted(recCtx, ev.StreamSid, ev.CallSid, callee)
	recCancel()

	go s.agentLoop(agent)
	return nil
}

// handleMedia forwards one caller audio chunk to the agent, in arrival order.
// A saturated agent queue blocks here, which in turn stalls the read loop.
func (s *Session) handleMedia(ev TelephonyEvent) error {
	s.mu.Lock()
	state := s.state
	agent := s.agent
	s.mu.Unlock()

	switch state {
	case StateCreated:
		return &ProtocolError{Reason: "media frame before start"}
	case StateActive:
		if err := agent.Send(ev.Payload); err != nil {
			s.log.Info("Agent send failed, ending session",
				zap.String("stream_sid", s.ID()),
				zap.Error(err),
			)
			return err
		}
		return nil
	default:
		// AgentConnecting cannot happen here (connect completes before the
		// next read); Closing/Closed means a late frame. Drop it.
		s.log.Debug("Dropping media frame",
			zap.String("stream_sid", s.ID()),
			zap.String("state", state.String()),
		)
		return nil
	}
}

// agentLoop consumes agent events until the agent leg closes, forwarding audio
// back to the caller and scanning response text for trigger keywords.
func (s *Session) agentLoop(agent AgentConn) {
	defer close(s.agentLoopDone)

	for ev := range agent.Events() {
		switch ev.Type {
		case elevenlabs.EventAudio:
			if !s.forwardToCaller(ev.Chunk) {
				s.Close("telephony write failed")
				return
			}
		case elevenlabs.EventResponse:
			s.log.Debug("Agent response",
				zap.String("stream_sid", s.ID()),
				zap.String("text", ev.Text),
			)
			s.maybeNotify(ev.Text)
		case elevenlabs.EventError:
			s.log.Warn("Agent reported error",
				zap.String("stream_sid", s.ID()),
				zap.Error(ev.Err),
			)
			s.Close("agent error")
			return
		case elevenlabs.EventClosed:
			s.Close("agent leg closed")
			return
		}
	}
	s.Close("agent event stream ended")
}

// forwardToCaller re-wraps one agent audio chunk with the session's streamSid
// and writes it to the telephony connection. Returns false on write failure.
func (s *Session) forwardToCaller(chunk string) bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return true // late audio after teardown started; drop silently
	}
	streamSid := s.id
	s.mu.Unlock()

	frame := EncodeTelephonyMedia(streamSid, chunk)

	s.writeMu.Lock()
	err := s.telephony.WriteMessage(frame)
	s.writeMu.Unlock()
	if err != nil {
		s.log.Info("Telephony write failed",
			zap.String("stream_sid", streamSid),
			zap.Error(err),
		)
		return false
	}
	return true
}

// maybeNotify fires the outcome notification at most once per session, and
// only when the callee number is known. The check-and-set is atomic with the
// state transitions.
func (s *Session) maybeNotify(text string) {
	keyword, ok := matchKeyword(text, s.cfg.TriggerKeywords)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.notified {
		s.mu.Unlock()
		return
	}
	if s.callee == "" {
		s.mu.Unlock()
		s.log.Warn("Trigger keyword matched but callee number unknown, skipping notification",
			zap.String("stream_sid", s.id),
			zap.String("keyword", keyword),
		)
		return
	}
	s.notified = true
	callee := s.callee
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reason := s.cfg.NotifyReason
	if reason == "" {
		reason = keyword
	}
	if err := s.deps.Notifier.Notify(ctx, callee, reason); err != nil {
		// Side-channel failure must never disturb the live call.
		s.log.Error("Outcome notification failed",
			zap.String("stream_sid", s.ID()),
			logger.MaskPhone("callee", callee),
			zap.Error(err),
		)
		return
	}

	metrics.RecordNotification()
	s.log.Info("Outcome notification sent",
		zap.String("stream_sid", s.ID()),
		logger.MaskPhone("callee", callee),
		zap.String("keyword", keyword),
	)
}

// Close tears down both legs, removes the session from the registry, and
// marks it Closed. Idempotent; safe from either receive loop.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	agent := s.agent
	id := s.id
	callSid := s.callSid
	notified := s.notified
	registered := s.registered
	s.mu.Unlock()

	if agent != nil {
		agent.Close()
	}
	_ = s.telephony.Close()

	// Only the session that owns the registry entry may remove it. A session
	// rejected as a duplicate stream SID must not evict the live one.
	if registered {
		s.deps.Registry.Unregister(id)

		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		s.deps.Recorder.SessionClosed(ctx, id, callSid, notified)
		cancel()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.log.Info("Session closed",
		zap.String("stream_sid", id),
		zap.String("reason", reason),
	)
}

func matchKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
