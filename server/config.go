package server

import "time"

// Default credential lifetimes in seconds.
const (
	DefaultAuthorizationCodeTTL = 600   // 10 minutes
	DefaultAccessTokenTTL       = 3600  // 1 hour
	DefaultRefreshTokenTTL      = 86400 // 24 hours
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier, recorded in audit events.
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 86400 (24 hours)

	// AllowRefreshTokenRotation rotates the refresh token on every use
	// (OAuth 2.1). When disabled, the presented refresh token stays valid
	// and is returned unchanged.
	// Default: true (secure by default)
	AllowRefreshTokenRotation bool // default: true

	// SupportedScopes lists the scopes the server accepts at all, before the
	// per-client allow-list applies. If empty, any scope a client is
	// registered for is accepted.
	SupportedScopes []string
}

// DefaultConfig returns a Config with secure defaults: rotation on and
// standard credential lifetimes. Callers that need legacy non-rotating
// refresh tokens must opt out explicitly after calling DefaultConfig.
func DefaultConfig() *Config {
	cfg := &Config{AllowRefreshTokenRotation: true}
	cfg.applyTTLDefaults()
	return cfg
}

// applyTTLDefaults fills zero lifetimes with the defaults. The rotation flag
// is left alone so an explicit opt-out survives.
func (c *Config) applyTTLDefaults() {
	if c.AuthorizationCodeTTL <= 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
}

func (c *Config) codeTTL() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

func (c *Config) accessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

func (c *Config) refreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}
