// Package otel publishes crossauth Manager metrics through an OpenTelemetry Meter.
//
// [New] creates one observable counter per Manager counter, one observable gauge per
// latency bucket and a cached-sessions gauge, all fed by a single callback that reads
// [crossauth.Manager.MetricsSnapshot] at collection time. The caller owns the
// MeterProvider; [Exporter.Close] only unregisters the callback.
package otel
