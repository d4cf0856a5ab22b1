package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Metrics holds process-wide counters for the bridge: relay session lifecycle,
// outcome notifications, and the durations of external service calls
// (signed-URL fetch, agent connect, SMS delivery, document indexing).
type Metrics struct {
	mu sync.RWMutex

	SessionsStarted   int64
	SessionsActive    int64
	NotificationsSent int64

	ServiceCalls   map[string]int64
	ServiceErrors  map[string]int64
	ServiceLatency map[string][]time.Duration

	CircuitBreakerState    map[string]string
	CircuitBreakerFailures map[string]int64

	StartTime time.Time
}

var globalMetrics *Metrics

func init() {
	Reset()
}

// Reset re-initializes the process-wide metrics state. Called once at startup
// (and from tests).
func Reset() {
	globalMetrics = &Metrics{
		ServiceCalls:           make(map[string]int64),
		ServiceErrors:          make(map[string]int64),
		ServiceLatency:         make(map[string][]time.Duration),
		CircuitBreakerState:    make(map[string]string),
		CircuitBreakerFailures: make(map[string]int64),
		StartTime:              time.Now(),
	}
}

// RecordSessionStart counts a relay session beginning.
func RecordSessionStart() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.SessionsStarted++
	globalMetrics.SessionsActive++
}

// RecordSessionEnd counts a relay session ending.
func RecordSessionEnd() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	if globalMetrics.SessionsActive > 0 {
		globalMetrics.SessionsActive--
	}
}

// RecordNotification counts one delivered outcome notification.
func RecordNotification() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.NotificationsSent++
}

// RecordServiceCall records one call to an external service.
func RecordServiceCall(service string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.ServiceCalls[service]++
	if !success {
		globalMetrics.ServiceErrors[service]++
	}

	// Keep only the last 100 latency samples per service.
	if len(globalMetrics.ServiceLatency[service]) >= 100 {
		globalMetrics.ServiceLatency[service] = globalMetrics.ServiceLatency[service][1:]
	}
	globalMetrics.ServiceLatency[service] = append(globalMetrics.ServiceLatency[service], latency)
}

// UpdateCircuitBreaker records the state of a named circuit breaker.
func UpdateCircuitBreaker(service, state string, failures int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.CircuitBreakerState[service] = state
	globalMetrics.CircuitBreakerFailures[service] = failures
}

// GetMetrics returns a snapshot for the JSON metrics endpoint.
func GetMetrics() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	serviceAvgLatency := make(map[string]float64)
	for service, latencies := range globalMetrics.ServiceLatency {
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			serviceAvgLatency[service] = sum.Seconds() / float64(len(latencies))
		}
	}

	serviceCalls := make(map[string]int64, len(globalMetrics.ServiceCalls))
	for k, v := range globalMetrics.ServiceCalls {
		serviceCalls[k] = v
	}
	serviceErrors := make(map[string]int64, len(globalMetrics.ServiceErrors))
	for k, v := range globalMetrics.ServiceErrors {
		serviceErrors[k] = v
	}
	cbState := make(map[string]string, len(globalMetrics.CircuitBreakerState))
	for k, v := range globalMetrics.CircuitBreakerState {
		cbState[k] = v
	}
	cbFailures := make(map[string]int64, len(globalMetrics.CircuitBreakerFailures))
	for k, v := range globalMetrics.CircuitBreakerFailures {
		cbFailures[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(globalMetrics.StartTime).Seconds(),
		"sessions": map[string]interface{}{
			"started": globalMetrics.SessionsStarted,
			"active":  globalMetrics.SessionsActive,
		},
		"notifications_sent": globalMetrics.NotificationsSent,
		"services": map[string]interface{}{
			"calls":               serviceCalls,
			"errors":              serviceErrors,
			"latency_avg_seconds": serviceAvgLatency,
		},
		"circuit_breakers": map[string]interface{}{
			"state":    cbState,
			"failures": cbFailures,
		},
	}
}

// GetPrometheusMetrics renders the snapshot in Prometheus text format.
func GetPrometheusMetrics() string {
	snapshot := GetMetrics()
	var output string

	output += "# HELP bridge_uptime_seconds Process uptime in seconds\n"
	output += "# TYPE bridge_uptime_seconds gauge\n"
	output += fmt.Sprintf("bridge_uptime_seconds %.2f\n", snapshot["uptime_seconds"].(float64))

	sessions := snapshot["sessions"].(map[string]interface{})
	output += "# HELP bridge_sessions_started_total Relay sessions started\n"
	output += "# TYPE bridge_sessions_started_total counter\n"
	output += fmt.Sprintf("bridge_sessions_started_total %d\n", sessions["started"].(int64))
	output += "# HELP bridge_sessions_active Relay sessions currently active\n"
	output += "# TYPE bridge_sessions_active gauge\n"
	output += fmt.Sprintf("bridge_sessions_active %d\n", sessions["active"].(int64))

	output += "# HELP bridge_notifications_sent_total Outcome notifications delivered\n"
	output += "# TYPE bridge_notifications_sent_total counter\n"
	output += fmt.Sprintf("bridge_notifications_sent_total %d\n", snapshot["notifications_sent"].(int64))

	services := snapshot["services"].(map[string]interface{})
	serviceCalls := services["calls"].(map[string]int64)
	output += "# HELP bridge_service_calls_total Calls per external service\n"
	output += "# TYPE bridge_service_calls_total counter\n"
	for service, count := range serviceCalls {
		output += fmt.Sprintf("bridge_service_calls_total{service=\"%s\"} %d\n", service, count)
	}

	serviceErrors := services["errors"].(map[string]int64)
	output += "# HELP bridge_service_errors_total Errors per external service\n"
	output += "# TYPE bridge_service_errors_total counter\n"
	for service, count := range serviceErrors {
		output += fmt.Sprintf("bridge_service_errors_total{service=\"%s\"} %d\n", service, count)
	}

	return output
}
