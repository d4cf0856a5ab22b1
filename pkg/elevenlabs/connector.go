package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/metrics"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// sendQueueSize bounds in-flight caller audio per connection. When the queue
// is full, Send blocks, which stalls the telephony receive loop upstream
// rather than dropping or reordering audio.
const sendQueueSize = 64

// ConnectFailure classifies why the agent leg could not be established.
type ConnectFailure string

const (
	AuthFailure    ConnectFailure = "auth_failure"
	NetworkFailure ConnectFailure = "network_failure"
	Timeout        ConnectFailure = "timeout"
)

// ConnectError reports a failed handshake or dial. The connector never retries;
// the session decides what a connect failure means.
type ConnectError struct {
	Kind ConnectFailure
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("agent connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ErrConnClosed is returned by Send after the connection has closed.
var ErrConnClosed = errors.New("agent connection closed")

// Connector obtains a short-lived signed URL for the configured agent and
// opens one WebSocket per session.
type Connector struct {
	apiKey  string
	agentID string
	timeout time.Duration
	logger  *zap.Logger

	// BaseURL overrides the ElevenLabs API endpoint (tests).
	BaseURL string

	httpClient *http.Client
}

func NewConnector(apiKey, agentID string, timeout time.Duration, logger *zap.Logger) *Connector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Connector{
		apiKey:     apiKey,
		agentID:    agentID,
		timeout:    timeout,
		logger:     logger,
		BaseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Connect fetches a signed URL and dials it. The whole sequence is bounded by
// the connector timeout and by ctx.
func (c *Connector) Connect(ctx context.Context) (*Conn, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	signedURL, err := c.signedURL(ctx)
	if err != nil {
		metrics.RecordServiceCall("elevenlabs.connect", false, time.Since(start))
		return nil, err
	}

	dialer := &websocket.Dialer{HandshakeTimeout: c.timeout}
	ws, resp, err := dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		metrics.RecordServiceCall("elevenlabs.connect", false, time.Since(start))
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &ConnectError{Kind: classifyDialError(ctx, err), Err: err}
	}
	if resp != nil {
		resp.Body.Close()
	}

	metrics.RecordServiceCall("elevenlabs.connect", true, time.Since(start))
	c.logger.Info("Agent connection established", zap.String("agent_id", c.agentID))

	conn := &Conn{
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		events: make(chan AgentEvent, 16),
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go conn.writePump()
	go conn.readPump()
	return conn, nil
}

// signedURL performs the authenticated handshake request.
func (c *Connector) signedURL(ctx context.Context) (string, error) {
	start := time.Now()

	endpoint := fmt.Sprintf("%s/v1/convai/conversation/get_signed_url?agent_id=%s",
		c.BaseURL, url.QueryEscape(c.agentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &ConnectError{Kind: NetworkFailure, Err: err}
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordServiceCall("elevenlabs.signed_url", false, time.Since(start))
		if ctx.Err() != nil {
			return "", &ConnectError{Kind: Timeout, Err: err}
		}
		return "", &ConnectError{Kind: NetworkFailure, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordServiceCall("elevenlabs.signed_url", false, time.Since(start))
		return "", &ConnectError{Kind: NetworkFailure, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RecordServiceCall("elevenlabs.signed_url", false, time.Since(start))
		kind := NetworkFailure
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = AuthFailure
		}
		return "", &ConnectError{
			Kind: kind,
			Err:  fmt.Errorf("signed URL request returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var result struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.RecordServiceCall("elevenlabs.signed_url", false, time.Since(start))
		return "", &ConnectError{Kind: NetworkFailure, Err: fmt.Errorf("failed to parse signed URL response: %w", err)}
	}
	if result.SignedURL == "" {
		metrics.RecordServiceCall("elevenlabs.signed_url", false, time.Since(start))
		return "", &ConnectError{Kind: AuthFailure, Err: errors.New("signed URL response missing signed_url")}
	}

	metrics.RecordServiceCall("elevenlabs.signed_url", true, time.Since(start))
	return result.SignedURL, nil
}

func classifyDialError(ctx context.Context, err error) ConnectFailure {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return AuthFailure
	}
	return NetworkFailure
}

// Conn is one live agent connection. A single writer goroutine drains the
// send queue so outbound chunks keep their arrival order.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	events chan AgentEvent
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
}

// Send queues one caller-audio chunk. It blocks while the queue is full and
// returns ErrConnClosed once the connection is closed.
func (c *Conn) Send(chunk string) error {
	data := EncodeAudioChunk(chunk)
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

// Events returns the inbound agent event stream. The channel is closed after
// a terminal EventClosed.
func (c *Conn) Events() <-chan AgentEvent {
	return c.events
}

// Close tears the connection down. Safe to call from any goroutine, any number
// of times; it unblocks pending Send and ReadMessage calls.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

func (c *Conn) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Agent write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readPump() {
	defer close(c.events)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Deliberate teardown.
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("Agent read failed", zap.Error(err))
				}
			}
			c.Close()
			// Best effort: if the consumer stopped draining, the deferred
			// channel close still ends its range loop.
			select {
			case c.events <- AgentEvent{Type: EventClosed}:
			default:
			}
			return
		}

		ev, err := DecodeAgentFrame(raw)
		if err != nil {
			c.logger.Warn("Dropping malformed agent frame", zap.Error(err))
			continue
		}
		if ev == nil {
			continue
		}
		select {
		case c.events <- *ev:
		case <-c.done:
			return
		}
	}
}
