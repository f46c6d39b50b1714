package storage

import "time"

// Client represents a registered OAuth client. Immutable after registration.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash, never the raw secret
	ClientName       string
	RedirectURIs     []string // exact-match only, no partial matching
	AllowedScopes    []string
	CreatedAt        time.Time
}

// Clone returns a deep copy so no shared mutable references escape the store.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.AllowedScopes = append([]string(nil), c.AllowedScopes...)
	return &cp
}

// AccessToken represents an issued access token. The Token value is an opaque
// random key with at least 128 bits of entropy.
type AccessToken struct {
	Token     string
	ClientID  string
	Scopes    []string // subset of the owning client's AllowedScopes at issuance
	CreatedAt time.Time
	ExpiresAt time.Time // set by the store on save (now + ttl)
}

// Clone returns a deep copy of the access token.
func (t *AccessToken) Clone() *AccessToken {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp
}

// RefreshToken maps an opaque refresh token to the access token it can renew.
// ClientID and Scopes are carried on the record so a refresh can still issue
// a correctly-scoped access token after the original one has expired.
type RefreshToken struct {
	Token       string
	AccessToken string
	ClientID    string
	Scopes      []string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Clone returns a deep copy of the refresh token.
func (t *RefreshToken) Clone() *RefreshToken {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp
}

// AuthorizationCode represents an issued authorization code bound to a client
// via its PKCE challenge. Mutated exactly once (the Used flip) and destroyed
// on expiry or first use.
type AuthorizationCode struct {
	Code          string
	ClientID      string
	RedirectURI   string
	CodeChallenge string // SHA-256, base64url, S256 method only (RFC 7636)
	Scopes        []string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
}

// Clone returns a deep copy of the authorization code.
func (c *AuthorizationCode) Clone() *AuthorizationCode {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp
}

// Stats holds live entity counts per credential type.
type Stats struct {
	Clients            int64
	AccessTokens       int64
	RefreshTokens      int64
	AuthorizationCodes int64
}
