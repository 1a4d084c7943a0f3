// Package observability provides an OpenTelemetry metrics extension for
// curator. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for job claims, completions, retries, quarantine
// pushes, supersede skips, and schedule fires.
//
// For per-transform tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
