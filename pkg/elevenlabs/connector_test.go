package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// fakeAgentServer stands in for the ElevenLabs API: a signed-URL endpoint plus
// the WebSocket it points at.
type fakeAgentServer struct {
	t  *testing.T
	ws *httptest.Server

	// received collects frames the client sent over the WebSocket.
	received chan []byte
	// outbound frames are written to the client as soon as it connects.
	outbound [][]byte

	gotAPIKey  string
	gotAgentID string
}

func newFakeAgentServer(t *testing.T, outbound ...[]byte) (*fakeAgentServer, *httptest.Server) {
	t.Helper()
	f := &fakeAgentServer{
		t:        t,
		received: make(chan []byte, 16),
		outbound: outbound,
	}

	upgrader := websocket.Upgrader{}
	f.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range f.outbound {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.received <- raw
		}
	}))
	t.Cleanup(f.ws.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.gotAPIKey = r.Header.Get("xi-api-key")
		f.gotAgentID = r.URL.Query().Get("agent_id")
		signed := "ws" + strings.TrimPrefix(f.ws.URL, "http")
		json.NewEncoder(w).Encode(map[string]string{"signed_url": signed})
	}))
	t.Cleanup(api.Close)

	return f, api
}

func newTestConnector(apiURL string) *Connector {
	c := NewConnector("test-key", "agent-123", 5*time.Second, zap.NewNop())
	c.BaseURL = apiURL
	return c
}

func TestConnector_Connect(t *testing.T) {
	server, api := newFakeAgentServer(t)
	c := newTestConnector(api.URL)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if server.gotAPIKey != "test-key" {
		t.Errorf("xi-api-key = %q, want test-key", server.gotAPIKey)
	}
	if server.gotAgentID != "agent-123" {
		t.Errorf("agent_id = %q, want agent-123", server.gotAgentID)
	}
}

func TestConn_SendDeliversAudioChunks(t *testing.T) {
	server, api := newFakeAgentServer(t)
	c := newTestConnector(api.URL)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	for _, chunk := range []string{"p1", "p2", "p3"} {
		if err := conn.Send(chunk); err != nil {
			t.Fatalf("Send(%q) failed: %v", chunk, err)
		}
	}

	for _, want := range []string{"p1", "p2", "p3"} {
		select {
		case raw := <-server.received:
			var frame struct {
				UserAudioChunk string `json:"user_audio_chunk"`
			}
			if err := json.Unmarshal(raw, &frame); err != nil {
				t.Fatalf("server received non-JSON frame: %v", err)
			}
			if frame.UserAudioChunk != want {
				t.Errorf("user_audio_chunk = %q, want %q", frame.UserAudioChunk, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for chunk %q", want)
		}
	}
}

func TestConn_EventsDeliverAgentFrames(t *testing.T) {
	server, api := newFakeAgentServer(t,
		[]byte(`{"type":"audio","audio":{"chunk":"YWJj"}}`),
		[]byte(`{"type":"ping","ping_event":{"event_id":7}}`),
		[]byte(`{"type":"agent_response","agent_response_event":{"agent_response":"hello"}}`),
	)
	_ = server
	c := newTestConnector(api.URL)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	next := func() AgentEvent {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				t.Fatal("events channel closed early")
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for agent event")
		}
		return AgentEvent{}
	}

	ev := next()
	if ev.Type != EventAudio || ev.Chunk != "YWJj" {
		t.Errorf("first event = %+v, want audio YWJj", ev)
	}
	// The ping frame must have been skipped.
	ev = next()
	if ev.Type != EventResponse || ev.Text != "hello" {
		t.Errorf("second event = %+v, want agent_response hello", ev)
	}
}

func TestConn_CloseIsIdempotentAndUnblocksSend(t *testing.T) {
	_, api := newFakeAgentServer(t)
	c := newTestConnector(api.URL)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := conn.Send("p1"); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send after Close = %v, want ErrConnClosed", err)
	}

	// The events channel terminates with EventClosed and then closes.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-conn.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed")
		}
	}
}

func TestConn_CloseUnblocksStalledReader(t *testing.T) {
	frames := make([][]byte, 40)
	for i := range frames {
		frames[i] = []byte(`{"type":"audio","audio":{"chunk":"YWJj"}}`)
	}
	_, api := newFakeAgentServer(t, frames...)
	c := newTestConnector(api.URL)

	conn, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Nobody reads Events, so the reader fills the buffer and stalls on the
	// next delivery.
	waitUntil(t, "event buffer full", func() bool {
		return len(conn.Events()) == cap(conn.Events())
	})

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close must release the stalled reader even though the consumer never
	// drains the channel.
	waitUntil(t, "reader goroutine exit", func() bool {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		return !strings.Contains(string(buf[:n]), "readPump")
	})
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnector_AuthFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	c := newTestConnector(api.URL)
	_, err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnectError", err)
	}
	if connErr.Kind != AuthFailure {
		t.Errorf("Kind = %q, want %q", connErr.Kind, AuthFailure)
	}
}

func TestConnector_MissingSignedURL(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(api.Close)

	c := newTestConnector(api.URL)
	_, err := c.Connect(context.Background())

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnectError", err)
	}
	if connErr.Kind != AuthFailure {
		t.Errorf("Kind = %q, want %q", connErr.Kind, AuthFailure)
	}
}

func TestConnector_ServerError(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(api.Close)

	c := newTestConnector(api.URL)
	_, err := c.Connect(context.Background())

	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnectError", err)
	}
	if connErr.Kind != NetworkFailure {
		t.Errorf("Kind = %q, want %q", connErr.Kind, NetworkFailure)
	}
}
