// Package testutil provides shared helpers for tests across the
// mcp-authcore library.
package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-authcore/storage"
)

// PKCEPair holds a matching code verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// GeneratePKCEPair returns a fresh RFC 7636 verifier and its S256 challenge.
func GeneratePKCEPair() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
	}
}

// ChallengeS256 computes base64url(SHA256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewTestClient returns a registered-client record with the given allowed
// scopes and a single redirect URI of http://localhost:8085/callback.
func NewTestClient(clientID string, scopes ...string) *storage.Client {
	return &storage.Client{
		ClientID:      clientID,
		ClientName:    "Test Client",
		RedirectURIs:  []string{"http://localhost:8085/callback"},
		AllowedScopes: scopes,
		CreatedAt:     time.Now(),
	}
}

// NewTestAccessToken returns an access token record for clientID carrying
// the given scopes. ExpiresAt is left zero; stores set it on save.
func NewTestAccessToken(token, clientID string, scopes ...string) *storage.AccessToken {
	return &storage.AccessToken{
		Token:     token,
		ClientID:  clientID,
		Scopes:    scopes,
		CreatedAt: time.Now(),
	}
}
