// Package server implements the OAuth 2.1 authorization core that gates the
// tool-execution server: it issues authorization codes, exchanges them for
// tokens under PKCE, rotates refresh tokens, validates access tokens into
// permission sets, and revokes credentials. It is transport-agnostic; an
// HTTP or MCP layer maps requests onto these operations.
package server
