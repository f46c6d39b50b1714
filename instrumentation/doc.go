// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization core. When disabled it uses no-op providers, so callers can
// instrument unconditionally with zero overhead in unobserved deployments.
package instrumentation
