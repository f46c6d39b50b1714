package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events. Every code path of the authorization
// server emits exactly one event per logical step, on success and failure alike.
const (
	// Authorization flow events

	// EventAuthorizationRequested is logged when an authorization request
	// passes validation and a code is about to be issued
	EventAuthorizationRequested = "authorization.requested"

	// EventAuthorizationGranted is logged when an authorization code has been issued
	EventAuthorizationGranted = "authorization.granted"

	// EventAuthorizationDenied is logged when an authorization request is
	// rejected (unregistered redirect URI, disallowed scope, unknown client)
	EventAuthorizationDenied = "authorization.denied"

	// Token lifecycle events

	// EventTokenIssued is logged when an authorization code exchange
	// completes, successfully or not
	EventTokenIssued = "token.issued"

	// EventTokenValidationSuccess is logged when an access token validates
	// and a security context is built
	EventTokenValidationSuccess = "token.validation.success"

	// EventTokenValidationFailed is logged when an access token is missing, expired, or revoked
	EventTokenValidationFailed = "token.validation.failed"

	// EventTokenRefreshed is logged when a refresh token exchange completes, successfully or not
	EventTokenRefreshed = "token.refreshed"

	// EventTokenRevoked is logged when a revocation request is processed
	EventTokenRevoked = "token.revoked" //nolint:gosec // G101: event type name, not a credential
)
