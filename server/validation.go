package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/giantswarm/mcp-authcore/internal/util"
	"github.com/giantswarm/mcp-authcore/storage"
)

// PKCE code challenge methods. Only S256 is accepted; 'plain' is deprecated
// in OAuth 2.1 and never allowed here.
const (
	PKCEMethodS256 = "S256"
)

// PKCE verifier and challenge length bounds from RFC 7636.
const (
	pkceMinLength = 43
	pkceMaxLength = 128
)

// validateRedirectURI checks the redirect URI against the client's
// registered URIs. Exact string match only; no prefix, subdomain, port, or
// path flexibility.
func validateRedirectURI(client *storage.Client, redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("redirect_uri is required")
	}

	if !util.ContainsString(client.RedirectURIs, redirectURI) {
		return fmt.Errorf("redirect_uri is not registered for client %s", client.ClientID)
	}

	return nil
}

// validateScopes checks that every requested scope is on the client's
// allow-list (and on the server's global list when one is configured).
// An empty request is valid and yields credentials with no scopes.
func (s *Server) validateScopes(client *storage.Client, scopes []string) error {
	for _, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("empty scope value")
		}
		if len(s.Config.SupportedScopes) > 0 && !util.ContainsString(s.Config.SupportedScopes, scope) {
			return fmt.Errorf("scope %q is not supported by this server", scope)
		}
		if !util.ContainsString(client.AllowedScopes, scope) {
			return fmt.Errorf("scope %q is not allowed for client %s", scope, client.ClientID)
		}
	}
	return nil
}

// validPKCEString reports whether s satisfies the RFC 7636 unreserved
// character set and length bounds shared by verifiers and challenges.
func validPKCEString(s string) bool {
	if len(s) < pkceMinLength || len(s) > pkceMaxLength {
		return false
	}
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

// validateCodeChallenge checks the challenge parameters at authorization
// time, before a code bound to them is issued.
func validateCodeChallenge(challenge, method string) error {
	if challenge == "" {
		return fmt.Errorf("code_challenge is required")
	}
	if method != PKCEMethodS256 {
		return fmt.Errorf("unsupported code_challenge_method: only %s is accepted", PKCEMethodS256)
	}
	if !validPKCEString(challenge) {
		return fmt.Errorf("code_challenge must be %d-%d characters from the unreserved set", pkceMinLength, pkceMaxLength)
	}
	return nil
}

// verifyPKCE checks the verifier presented at exchange time against the
// challenge the code was issued with: challenge == BASE64URL(SHA256(verifier)).
// The comparison is constant-time.
func verifyPKCE(verifier, challenge string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	if !validPKCEString(verifier) {
		return fmt.Errorf("code_verifier must be %d-%d characters from the unreserved set", pkceMinLength, pkceMaxLength)
	}

	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}
