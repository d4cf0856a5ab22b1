package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	c := NewClient("AC00000000000000000000000000000000", "token", zap.NewNop())
	c.BaseURL = baseURL
	return c
}

func TestCreateCall(t *testing.T) {
	var gotPath, gotUser, gotFrom, gotTo, gotURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		r.ParseForm()
		gotFrom = r.PostForm.Get("From")
		gotTo = r.PostForm.Get("To")
		gotURL = r.PostForm.Get("Url")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA123","status":"queued","from":"+15550001111","to":"+15552223333"}`))
	}))
	t.Cleanup(server.Close)

	c := newTestClient(server.URL)
	call, err := c.CreateCall(context.Background(), "+15550001111", "+15552223333", "https://bridge.example.com/outbound-call-twiml")
	if err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}

	if gotPath != "/Accounts/AC00000000000000000000000000000000/Calls.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC00000000000000000000000000000000" {
		t.Errorf("basic auth user = %q", gotUser)
	}
	if gotFrom != "+15550001111" || gotTo != "+15552223333" {
		t.Errorf("form From/To = %q/%q", gotFrom, gotTo)
	}
	if gotURL != "https://bridge.example.com/outbound-call-twiml" {
		t.Errorf("form Url = %q", gotURL)
	}
	if call.Sid != "CA123" || call.Status != "queued" {
		t.Errorf("call = %+v", call)
	}
}

func TestCalleeNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC00000000000000000000000000000000/Calls/CA123.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"sid":"CA123","status":"in-progress","from":"+15550001111","to":"+15552223333"}`))
	}))
	t.Cleanup(server.Close)

	c := newTestClient(server.URL)
	number, err := c.CalleeNumber(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("CalleeNumber failed: %v", err)
	}
	if number != "+15552223333" {
		t.Errorf("number = %q, want +15552223333", number)
	}
}

func TestCalleeNumber_MissingTo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sid":"CA123","status":"queued"}`))
	}))
	t.Cleanup(server.Close)

	c := newTestClient(server.URL)
	if _, err := c.CalleeNumber(context.Background(), "CA123"); err == nil {
		t.Fatal("expected error for call without callee number")
	}
}

func TestSendSMS(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC00000000000000000000000000000000/Messages.json" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM456","status":"queued"}`))
	}))
	t.Cleanup(server.Close)

	c := newTestClient(server.URL)
	msg, err := c.SendSMS(context.Background(), "+15550001111", "+15552223333", "Appointment confirmed")
	if err != nil {
		t.Fatalf("SendSMS failed: %v", err)
	}
	if msg.Sid != "SM456" {
		t.Errorf("message sid = %q, want SM456", msg.Sid)
	}
	if gotBody != "Appointment confirmed" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestSendSMS_RetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, `{"message":"service unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM456","status":"queued"}`))
	}))
	t.Cleanup(server.Close)

	c := newTestClient(server.URL)
	msg, err := c.SendSMS(context.Background(), "+15550001111", "+15552223333", "hi")
	if err != nil {
		t.Fatalf("SendSMS failed after retries: %v", err)
	}
	if msg.Sid != "SM456" {
		t.Errorf("message sid = %q, want SM456", msg.Sid)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":21211,"message":"Invalid 'To' Phone Number"}`, http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	c := newTestClient(server.URL)
	if _, err := c.CreateCall(context.Background(), "+1555", "bogus", "https://example.com"); err == nil {
		t.Fatal("expected error for API failure status")
	}
}
