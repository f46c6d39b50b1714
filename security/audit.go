package security

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Result classifies the outcome of an audited operation.
type Result string

// Audit result values.
const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultWarning Result = "warning"
)

// redactedIDLength is the number of leading characters of an identifier kept
// in a log line. Enough uniqueness for debugging while keeping logs secure.
const redactedIDLength = 8

// sensitiveDetailKeys lists detail keys whose values are secrets. Values
// under these keys are redacted before the entry is written, even if a
// caller mistakenly passes a full token, code, verifier, or client secret.
var sensitiveDetailKeys = map[string]bool{
	"token":              true,
	"access_token":       true,
	"refresh_token":      true,
	"code":               true,
	"authorization_code": true,
	"code_verifier":      true,
	"verifier":           true,
	"client_secret":      true,
	"secret":             true,
}

// Auditor writes the append-only structured audit event log.
//
// The auditor never receives, stores, or prints a raw token, refresh token,
// authorization code, client secret, or PKCE verifier: values under known
// sensitive keys are redacted defensively, and callers surface identifiers
// through RedactID.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Context carries the non-secret request context attached to every event.
type Context struct {
	ClientID  string
	IPAddress string
}

// Log writes one audit event. eventType is one of the Event* constants,
// result classifies the outcome, and details holds event-specific fields
// (sanitized before writing).
func (a *Auditor) Log(eventType string, result Result, evCtx Context, details map[string]any) {
	if a == nil || !a.enabled {
		return
	}

	a.logger.Info("security_audit",
		"event_id", uuid.NewString(),
		"event_type", eventType,
		"result", string(result),
		"client_id", evCtx.ClientID,
		"ip_address", evCtx.IPAddress,
		"details", sanitizeDetails(details),
		"timestamp", time.Now(),
	)
}

// sanitizeDetails returns a copy of details with secret values redacted.
// The input map is never modified.
func sanitizeDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(details))
	for key, value := range details {
		if sensitiveDetailKeys[key] {
			if strVal, ok := value.(string); ok {
				sanitized[key] = RedactID(strVal)
				continue
			}
			sanitized[key] = "<redacted>"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

// RedactID truncates an identifier to a fixed short prefix with an explicit
// ellipsis marker, e.g. "dGhpcyBp...". Identifiers at or below the prefix
// length are still suffixed so a log line never carries a complete secret.
func RedactID(id string) string {
	if id == "" {
		return "<empty>"
	}
	if len(id) <= redactedIDLength {
		return id[:len(id)/2] + "..."
	}
	return id[:redactedIDLength] + "..."
}
