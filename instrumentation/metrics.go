package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authorization core
type Metrics struct {
	// Flow Metrics
	FlowOperationsTotal   metric.Int64Counter
	FlowOperationDuration metric.Float64Histogram

	// Security Metrics
	PKCEValidationFailed metric.Int64Counter
	CodeReuseDetected    metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StoreClientsCount        metric.Int64ObservableGauge
	StoreTokensCount         metric.Int64ObservableGauge
	StoreRefreshTokensCount  metric.Int64ObservableGauge
	StoreCodesCount          metric.Int64ObservableGauge

	// Audit Metrics
	AuditEventsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	serverMeter := inst.Meter("server")
	storageMeter := inst.Meter("storage")
	securityMeter := inst.Meter("security")

	var err error
	m.FlowOperationsTotal, err = serverMeter.Int64Counter(
		"authcore.flow.operations.total",
		metric.WithDescription("Total number of authorization flow operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.operations.total counter: %w", err)
	}

	m.FlowOperationDuration, err = serverMeter.Float64Histogram(
		"authcore.flow.operation.duration",
		metric.WithDescription("Authorization flow operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow.operation.duration histogram: %w", err)
	}

	m.PKCEValidationFailed, err = securityMeter.Int64Counter(
		"authcore.pkce.validation.failed",
		metric.WithDescription("Number of failed PKCE verifier validations"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pkce.validation.failed counter: %w", err)
	}

	m.CodeReuseDetected, err = securityMeter.Int64Counter(
		"authcore.code.reuse.detected",
		metric.WithDescription("Number of authorization code reuse attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.reuse.detected counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"authcore.storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"authcore.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StoreClientsCount, err = storageMeter.Int64ObservableGauge(
		"authcore.storage.clients.count",
		metric.WithDescription("Current number of registered clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	m.StoreTokensCount, err = storageMeter.Int64ObservableGauge(
		"authcore.storage.tokens.count",
		metric.WithDescription("Current number of live access tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.tokens.count gauge: %w", err)
	}

	m.StoreRefreshTokensCount, err = storageMeter.Int64ObservableGauge(
		"authcore.storage.refresh_tokens.count",
		metric.WithDescription("Current number of live refresh tokens"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.refresh_tokens.count gauge: %w", err)
	}

	m.StoreCodesCount, err = storageMeter.Int64ObservableGauge(
		"authcore.storage.authorization_codes.count",
		metric.WithDescription("Current number of live authorization codes"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.authorization_codes.count gauge: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"authcore.audit.events.total",
		metric.WithDescription("Total number of audit events emitted"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	return m, nil
}

// RecordFlowOperation records one authorization flow operation
// (authorize, exchange_code, refresh, verify, revoke) with its outcome.
func (m *Metrics) RecordFlowOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	)
	m.FlowOperationsTotal.Add(ctx, 1, attrs)
	m.FlowOperationDuration.Record(ctx, durationMs, attrs)
}

// RecordPKCEFailure records a failed PKCE verifier validation
func (m *Metrics) RecordPKCEFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.PKCEValidationFailed.Add(ctx, 1)
}

// RecordCodeReuse records an authorization code reuse attempt
func (m *Metrics) RecordCodeReuse(ctx context.Context) {
	if m == nil {
		return
	}
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordStorageOperation records one storage operation with its outcome
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	)
	m.StorageOperationTotal.Add(ctx, 1, attrs)
	m.StorageOperationDuration.Record(ctx, durationMs, attrs)
}

// RecordAuditEvent records one emitted audit event by type
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
