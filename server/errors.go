package server

import (
	"fmt"
	"net/http"
)

// OAuth error codes as constants (RFC 6749 section 5.2, RFC 6750).
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidGrant        = "invalid_grant"
	ErrorCodeInvalidClient       = "invalid_client"
	ErrorCodeInvalidScope        = "invalid_scope"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeUnauthorizedClient  = "unauthorized_client"
	ErrorCodeServerError         = "server_error"
	ErrorCodeAccessDenied        = "access_denied"
	ErrorCodeInvalidRedirectURI  = "invalid_redirect_uri"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrorCodeUnsupportedGrant    = "unsupported_grant_type"
	ErrorCodeUnsupportedTokenTyp = "unsupported_token_type"
)

// Error represents an OAuth 2.0 error response
type Error struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code a transport layer should map this to
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a new OAuth error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *Error {
		return NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidScope indicates the requested scope is invalid or not allowed for the client
	ErrInvalidScope = func(desc string) *Error {
		return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the access token is invalid, expired, or revoked
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrInvalidRedirectURI indicates the redirect URI is not registered for the client
	ErrInvalidRedirectURI = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRedirectURI, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrRateLimitExceeded indicates the caller exceeded the per-client rate limit
	ErrRateLimitExceeded = func(desc string) *Error {
		return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)
