// Package prometheus exposes crossauth Manager metrics as a Prometheus collector.
//
// [NewCollector] reads [crossauth.Manager.MetricsSnapshot] on every scrape and emits
// const metrics, so nothing is double counted and the Manager stays the only owner of
// the counters. Counter names are crossauth_*_total; the latency histogram is
// crossauth_validate_latency_seconds.
//
// The collector is never registered globally. Register it on your own registry, or use
// [Handler] for a self-contained /metrics endpoint.
package prometheus
