// Package permissions maps granted OAuth scopes onto the internal permission
// model enforced on every protected call. Scopes are what a client requests
// (e.g. "tools:execute"); permissions are what handlers check
// (e.g. "tools:*"). Both mapping and checking are pure functions.
package permissions

import (
	"strings"
	"time"
)

// PermissionAll grants full access.
const PermissionAll = "*"

// scopePermissions is the scope -> permission table. Scopes not listed here
// pass through unchanged, so deployments can introduce custom scopes without
// touching this package.
var scopePermissions = map[string][]string{
	"read":           {"read:*"},
	"write":          {"write:*"},
	"tools:execute":  {"tools:*"},
	"resources:read": {"resources:*"},
	"prompts:read":   {"prompts:*"},
	"admin":          {PermissionAll},
}

// MapScopesToPermissions maps OAuth scope strings to internal permission
// strings. The result is deduplicated and deterministic for a given input
// set regardless of order; unknown scopes pass through unchanged.
func MapScopesToPermissions(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(scopes))
	perms := make([]string, 0, len(scopes))

	add := func(perm string) {
		if !seen[perm] {
			seen[perm] = true
			perms = append(perms, perm)
		}
	}

	for _, scope := range scopes {
		if mapped, ok := scopePermissions[scope]; ok {
			for _, perm := range mapped {
				add(perm)
			}
			continue
		}
		add(scope)
	}

	return perms
}

// SecurityContext is the per-request, non-persisted object carrying the
// authenticated permission set derived from a validated access token. It is
// built fresh for every validated request and never stored.
type SecurityContext struct {
	Authenticated bool
	Permissions   []string
	ClientID      string
	CreatedAt     time.Time
	IPAddress     string
}

// NewSecurityContext builds an authenticated context for a client from the
// scopes carried by its validated access token.
func NewSecurityContext(clientID string, scopes []string) *SecurityContext {
	return &SecurityContext{
		Authenticated: true,
		Permissions:   MapScopesToPermissions(scopes),
		ClientID:      clientID,
		CreatedAt:     time.Now(),
	}
}

// HasPermission reports whether the context's permission set satisfies the
// required permission: an exact match, the full-access wildcard "*", or a
// single-level prefix wildcard ("tools:*" satisfies "tools:my-tool"). There
// is no partial-prefix matching beyond that.
func HasPermission(secCtx *SecurityContext, required string) bool {
	if secCtx == nil || !secCtx.Authenticated || required == "" {
		return false
	}

	for _, perm := range secCtx.Permissions {
		if perm == required || perm == PermissionAll {
			return true
		}
		if prefix, ok := strings.CutSuffix(perm, ":*"); ok {
			if strings.HasPrefix(required, prefix+":") {
				return true
			}
		}
	}

	return false
}
