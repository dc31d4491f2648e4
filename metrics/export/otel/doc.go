// Package otel provides OpenTelemetry bindings for the session service's
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each
// counter and Int64ObservableGauge per histogram bucket. A single callback
// reads [sessionguard.Service.MetricsSnapshot] on each collection cycle.
//
// The caller owns the MeterProvider; this package only registers against a
// supplied Meter and never mutates service state.
package otel
