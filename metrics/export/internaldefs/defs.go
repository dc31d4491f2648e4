package internaldefs

import (
	sessionguard "github.com/panelforge/sessionguard"
)

// CounterDef binds one service counter to its exported metric name.
type CounterDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// HistogramDef binds one service histogram to its exported metric name.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Exporters iterate this slice so
// all backends publish identical names.
var CounterDefs = []CounterDef{
	{ID: sessionguard.MetricSessionCreated, Name: "sessionguard_session_created_total", Help: "Created sessions."},
	{ID: sessionguard.MetricValidateAccepted, Name: "sessionguard_validate_accepted_total", Help: "Validations that accepted the request."},
	{ID: sessionguard.MetricValidateRejected, Name: "sessionguard_validate_rejected_total", Help: "Validations that rejected the request."},
	{ID: sessionguard.MetricSessionExpired, Name: "sessionguard_session_expired_total", Help: "Sessions destroyed by the idle-timeout check."},
	{ID: sessionguard.MetricHijackSuspected, Name: "sessionguard_hijack_suspected_total", Help: "Sessions destroyed on user-agent mismatch."},
	{ID: sessionguard.MetricIPChanged, Name: "sessionguard_ip_changed_total", Help: "Tolerated client IP changes."},
	{ID: sessionguard.MetricSessionRotated, Name: "sessionguard_session_rotated_total", Help: "Completed token rotations."},
	{ID: sessionguard.MetricRotationFailed, Name: "sessionguard_rotation_failed_total", Help: "Rotations that could not complete."},
	{ID: sessionguard.MetricSessionDestroyed, Name: "sessionguard_session_destroyed_total", Help: "Explicit single-session destroys."},
	{ID: sessionguard.MetricSessionsRevoked, Name: "sessionguard_sessions_revoked_total", Help: "Bulk revocation operations."},
	{ID: sessionguard.MetricSessionEvicted, Name: "sessionguard_session_evicted_total", Help: "Oldest-session evictions at the concurrency limit."},
	{ID: sessionguard.MetricPrivilegeEscalated, Name: "sessionguard_privilege_escalated_total", Help: "Privilege level escalations."},
	{ID: sessionguard.MetricStoreUnavailable, Name: "sessionguard_store_unavailable_total", Help: "Operations that failed closed on a store outage."},
	{ID: sessionguard.MetricTelemetryDropped, Name: "sessionguard_telemetry_dropped_total", Help: "Lost fire-and-forget telemetry writes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricValidateLatency, Name: "sessionguard_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, as label values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bounds as metric-name-safe suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
