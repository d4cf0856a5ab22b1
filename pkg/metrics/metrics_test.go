package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestSessionCounters(t *testing.T) {
	Reset()

	RecordSessionStart()
	RecordSessionStart()
	RecordSessionEnd()

	snapshot := GetMetrics()
	sessions := snapshot["sessions"].(map[string]interface{})
	if sessions["started"].(int64) != 2 {
		t.Errorf("started = %v, want 2", sessions["started"])
	}
	if sessions["active"].(int64) != 1 {
		t.Errorf("active = %v, want 1", sessions["active"])
	}
}

func TestSessionEnd_NeverGoesNegative(t *testing.T) {
	Reset()

	RecordSessionEnd()

	snapshot := GetMetrics()
	sessions := snapshot["sessions"].(map[string]interface{})
	if sessions["active"].(int64) != 0 {
		t.Errorf("active = %v, want 0", sessions["active"])
	}
}

func TestServiceCalls(t *testing.T) {
	Reset()

	RecordServiceCall("twilio.sms", true, 50*time.Millisecond)
	RecordServiceCall("twilio.sms", false, 100*time.Millisecond)

	snapshot := GetMetrics()
	services := snapshot["services"].(map[string]interface{})
	calls := services["calls"].(map[string]int64)
	errs := services["errors"].(map[string]int64)

	if calls["twilio.sms"] != 2 {
		t.Errorf("calls = %d, want 2", calls["twilio.sms"])
	}
	if errs["twilio.sms"] != 1 {
		t.Errorf("errors = %d, want 1", errs["twilio.sms"])
	}
}

func TestPrometheusFormat(t *testing.T) {
	Reset()

	RecordSessionStart()
	RecordNotification()
	RecordServiceCall("elevenlabs.connect", true, 20*time.Millisecond)

	out := GetPrometheusMetrics()

	for _, want := range []string{
		"bridge_sessions_started_total 1",
		"bridge_sessions_active 1",
		"bridge_notifications_sent_total 1",
		`bridge_service_calls_total{service="elevenlabs.connect"} 1`,
		"# TYPE bridge_uptime_seconds gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prometheus output missing %q", want)
		}
	}
}
