// Package authcore provides an embeddable OAuth 2.1 authorization core for
// tool-execution (MCP) servers: authorization code + PKCE issuance, token
// exchange with refresh rotation, token verification into permission sets,
// and RFC 7009 revocation, on top of pluggable storage backends.
//
// The root package is a facade over the subpackages; most programs only need
// it plus a storage backend:
//
//	store := memory.New()
//	_ = store.Connect(ctx)
//	srv, _ := authcore.New(store, authcore.DefaultConfig(), logger)
//
// See the server, storage, permissions, and security packages for the full
// surface.
package authcore

import (
	"github.com/giantswarm/mcp-authcore/server"
)

// Core types, aliased so callers can stay on the root import.
type (
	// Server implements the authorization core flows.
	Server = server.Server

	// Config holds authorization server configuration.
	Config = server.Config

	// Error is an OAuth 2.0 error with code, description, and HTTP status.
	Error = server.Error

	// TokenResponse is an OAuth 2.0 token response.
	TokenResponse = server.TokenResponse

	// AuthorizeRequest carries the parameters of an authorization request.
	AuthorizeRequest = server.AuthorizeRequest

	// AuthorizeResponse carries an issued authorization code.
	AuthorizeResponse = server.AuthorizeResponse

	// ExchangeRequest carries the parameters of a code exchange.
	ExchangeRequest = server.ExchangeRequest

	// RefreshRequest carries the parameters of a refresh exchange.
	RefreshRequest = server.RefreshRequest

	// RevokeRequest carries the parameters of a revocation request.
	RevokeRequest = server.RevokeRequest

	// RegisterClientRequest carries the parameters for registering a client.
	RegisterClientRequest = server.RegisterClientRequest

	// ClientRegistration is the one-time result of a client registration.
	ClientRegistration = server.ClientRegistration
)

// New creates a new authorization server on top of a storage provider.
var New = server.New

// DefaultConfig returns a Config with secure defaults.
var DefaultConfig = server.DefaultConfig

// OAuth error codes (RFC 6749 section 5.2, RFC 6750).
const (
	ErrorCodeInvalidRequest     = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidGrant       = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidClient      = server.ErrorCodeInvalidClient
	ErrorCodeInvalidScope       = server.ErrorCodeInvalidScope
	ErrorCodeInvalidToken       = server.ErrorCodeInvalidToken
	ErrorCodeServerError        = server.ErrorCodeServerError
	ErrorCodeAccessDenied       = server.ErrorCodeAccessDenied
	ErrorCodeInvalidRedirectURI = server.ErrorCodeInvalidRedirectURI
	ErrorCodeRateLimitExceeded  = server.ErrorCodeRateLimitExceeded
)

// ErrorResponse is the JSON shape of an OAuth error response, for transport
// layers that render Error values onto the wire.
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}
