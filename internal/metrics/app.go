package metrics

import (
	"time"

	"github.com/SevenOfNine-ai/redditgw/internal/observability"
)

// Gateway metrics following Prometheus conventions
var (
	// Tool call metrics
	ToolCallsTotal   = "tool_calls_total"
	ToolCallDuration = "tool_call_duration_ms"

	// Bridge lifecycle metrics
	BridgeDisconnectsTotal = "bridge_disconnects_total"
	BridgeReconnectsTotal  = "bridge_reconnects_total"
	BridgeConnected        = "bridge_connected"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordToolCall records one dispatched tool call and how long it took
func RecordToolCall(tool, mode, outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(
		ToolCallsTotal,
		1,
		map[string]string{
			"tool":    tool,
			"mode":    mode,
			"outcome": outcome,
		},
	)

	_ = observability.TelemetrySystem.Histogram(
		ToolCallDuration,
		duration,
		map[string]string{
			"tool": tool,
		},
	)
}

// RecordBridgeDisconnect records a transport close or error event
func RecordBridgeDisconnect(reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BridgeDisconnectsTotal,
			1,
			map[string]string{
				"reason": reason,
			},
		)
	}
}

// RecordBridgeReconnect records a reconnect-and-retry
func RecordBridgeReconnect() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BridgeReconnectsTotal,
			1,
			nil,
		)
	}
}

// SetBridgeConnected sets the bridge connection gauge (1 connected, 0 not)
func SetBridgeConnected(connected bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1
	}
	_ = observability.TelemetrySystem.Gauge(BridgeConnected, value, nil)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
