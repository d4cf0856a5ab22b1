package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/circuitbreaker"
	"github.com/troikatech/voice-bridge/pkg/metrics"
	"github.com/troikatech/voice-bridge/pkg/retry"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client is a thin Twilio REST client covering the three operations the
// bridge needs: originating a call, looking up a call's metadata, and sending
// an SMS. The two side-channel operations (lookup, SMS) run behind a shared
// circuit breaker so a failing Twilio API cannot be hammered from live calls.
type Client struct {
	accountSID string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
	breaker    *circuitbreaker.CircuitBreaker

	// BaseURL overrides the Twilio API endpoint (tests).
	BaseURL string
}

func NewClient(accountSID, authToken string, logger *zap.Logger) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		BaseURL:    defaultBaseURL,
	}
}

// Call is the subset of a Twilio call resource the bridge reads.
type Call struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Message is the subset of a Twilio message resource the bridge reads.
type Message struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

// CreateCall originates an outbound call whose instructions are fetched from
// twimlURL once the callee answers.
func (c *Client) CreateCall(ctx context.Context, from, to, twimlURL string) (*Call, error) {
	data := url.Values{}
	data.Set("From", from)
	data.Set("To", to)
	data.Set("Url", twimlURL)

	var call Call
	if err := c.postForm(ctx, "/Calls.json", data, &call); err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	c.logger.Info("Outbound call created",
		zap.String("call_sid", call.Sid),
		zap.String("status", call.Status),
	)
	return &call, nil
}

// GetCall fetches one call resource by SID.
func (c *Client) GetCall(ctx context.Context, callSid string) (*Call, error) {
	var call Call
	err := c.breaker.Execute(ctx, func() error {
		return c.getJSON(ctx, "/Calls/"+callSid+".json", &call)
	})
	c.exportBreakerState()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch call %s: %w", callSid, err)
	}
	return &call, nil
}

// CalleeNumber resolves a call SID to the number the call was placed to.
// Satisfies the relay's callee resolver contract.
func (c *Client) CalleeNumber(ctx context.Context, callSid string) (string, error) {
	start := time.Now()
	call, err := c.GetCall(ctx, callSid)
	metrics.RecordServiceCall("twilio.call_lookup", err == nil, time.Since(start))
	if err != nil {
		return "", err
	}
	if call.To == "" {
		return "", fmt.Errorf("call %s has no callee number", callSid)
	}
	return call.To, nil
}

// SendSMS delivers a text message, retrying transient failures. The breaker
// trips after repeated failures so a broken messaging API degrades quietly.
func (c *Client) SendSMS(ctx context.Context, from, to, body string) (*Message, error) {
	data := url.Values{}
	data.Set("From", from)
	data.Set("To", to)
	data.Set("Body", body)

	start := time.Now()
	var msg Message
	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, retry.DefaultConfig(), func() error {
			return c.postForm(ctx, "/Messages.json", data, &msg)
		})
	})
	c.exportBreakerState()
	metrics.RecordServiceCall("twilio.sms", err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to send SMS: %w", err)
	}
	return &msg, nil
}

func (c *Client) postForm(ctx context.Context, path string, data url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s%s", c.BaseURL, c.accountSID, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s%s", c.BaseURL, c.accountSID, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio API error: %s (status %d)", string(body), resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) exportBreakerState() {
	stats := c.breaker.GetStats()
	state, _ := stats["state"].(string)
	failures, _ := stats["failures"].(int)
	metrics.UpdateCircuitBreaker("twilio", state, int64(failures))
}
