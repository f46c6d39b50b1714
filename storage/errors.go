package storage

import "errors"

// Sentinel errors returned by storage implementations.
//
// The first group reflects caller error or legitimate expiry and is never
// retryable. ErrUnavailable is the separate, retryable class surfaced by
// network-backed implementations so callers do not conflate "token invalid"
// with "storage unavailable".
var (
	// ErrAlreadyExists is returned when saving an entity under a key that is
	// still live. Identifier collision is an error, never an overwrite.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNotFound is the base error for all missing-entity conditions.
	ErrNotFound = errors.New("entity not found")

	// ErrClientNotFound is returned when a client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrTokenNotFound is returned when an access token does not exist or has expired
	ErrTokenNotFound = errors.New("access token not found")

	// ErrRefreshTokenNotFound is returned when a refresh token does not exist
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrAuthorizationCodeNotFound is returned when an authorization code does not exist
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrExpired is returned when an entity exists but its expiry has passed.
	// Implementations wrap this so callers can distinguish expiry from absence.
	ErrExpired = errors.New("entity expired")

	// ErrAuthorizationCodeUsed is returned by MarkAuthorizationCodeUsed when
	// the code was already consumed by an earlier (or concurrent) exchange.
	ErrAuthorizationCodeUsed = errors.New("authorization code already used")

	// ErrTransactionClosed is returned when operating on a transaction that
	// has already been committed or rolled back.
	ErrTransactionClosed = errors.New("transaction already committed or rolled back")

	// ErrUnavailable indicates a backend infrastructure failure (network
	// timeout, connection refused). Unlike the errors above, this class is
	// transient and retryable by the caller.
	ErrUnavailable = errors.New("storage backend unavailable")
)

// IsNotFound reports whether err is any of the missing-entity sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrRefreshTokenNotFound) ||
		errors.Is(err, ErrAuthorizationCodeNotFound)
}
