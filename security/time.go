package security

import "time"

// IsExpired reports whether an absolute expiry timestamp has passed.
//
// The comparison is exact: an entry read at expiresAt-1ms is live, an entry
// read any time after expiresAt is gone. No clock-skew grace period is
// applied; credentials issued and validated by the same process share one
// clock, so a grace window would only extend token lifetimes.
//
// A zero expiry means the entry never expires.
func IsExpired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt)
}

// ExpiresIn returns the remaining lifetime in whole seconds, clamped at zero.
// Used for the expires_in field of token responses.
func ExpiresIn(expiresAt time.Time) int64 {
	remaining := time.Until(expiresAt)
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}
