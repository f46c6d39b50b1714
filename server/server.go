package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-authcore/instrumentation"
	"github.com/giantswarm/mcp-authcore/security"
	"github.com/giantswarm/mcp-authcore/storage"
)

// Server implements the authorization core logic. It coordinates the flows
// against a storage provider and emits audit events for every credential
// decision.
type Server struct {
	store storage.Provider

	// Auditor receives one event per flow decision; nil disables auditing.
	Auditor *security.Auditor

	// RateLimiter throttles flow operations per client; nil disables limiting.
	RateLimiter *security.EventRateLimiter

	Logger *slog.Logger
	Config *Config

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer
}

// New creates a new authorization server on top of a storage provider.
// A nil config gets secure defaults; a partially filled config gets default
// lifetimes for unset fields.
func New(store storage.Provider, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage provider is required")
	}
	if config == nil {
		config = DefaultConfig()
	} else {
		config.applyTTLDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		store:  store,
		Logger: logger,
		Config: config,
	}, nil
}

// SetInstrumentation sets OpenTelemetry instrumentation for the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// Store returns the underlying storage provider.
func (s *Server) Store() storage.Provider {
	return s.store
}

// generateRandomToken produces a credential string with 256 bits of
// CSPRNG-backed entropy in the base64url alphabet. Used for access tokens,
// refresh tokens, authorization codes, and client secrets alike.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// audit emits one audit event and counts it, when an auditor is configured.
func (s *Server) audit(ctx context.Context, eventType string, result security.Result, evCtx security.Context, details map[string]any) {
	s.Auditor.Log(eventType, result, evCtx, details)
	if s.inst != nil {
		s.inst.Metrics().RecordAuditEvent(ctx, eventType)
	}
}

// allowRate applies the per-client rate limit for a flow operation.
func (s *Server) allowRate(clientID string) bool {
	if s.RateLimiter == nil {
		return true
	}
	return s.RateLimiter.Allow(clientID)
}

// startFlowSpan starts a span for one flow operation
func (s *Server) startFlowSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, fmt.Sprintf("flow.%s", operation),
		trace.WithAttributes(attribute.String("operation", operation)))
}

// recordFlowOperation records metrics for a completed flow operation and
// closes out the span status.
func (s *Server) recordFlowOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if err != nil {
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	if s.inst == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.inst.Metrics().RecordFlowOperation(ctx, operation, result,
		float64(time.Since(startTime).Milliseconds()))
}
