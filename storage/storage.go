package storage

import (
	"context"
	"time"
)

// ClientStore defines the interface for managing registered OAuth clients.
// Clients are immutable after registration: created once, read-only thereafter.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client.
	// Returns ErrAlreadyExists if the client ID is already registered.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// DeleteClient removes a client registration
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)

	// ValidateClientSecret validates a client's secret in constant time
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// TokenStore defines the interface for storing and retrieving access tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveToken stores an access token with expiry at now + ttl.
	// The store keeps a deep copy; the caller's value never aliases internal
	// state. Returns ErrAlreadyExists if the token key is still live.
	SaveToken(ctx context.Context, token *AccessToken, ttl time.Duration) error

	// GetToken retrieves a copy of the stored token, or an error wrapping
	// ErrTokenNotFound if the token is absent or past its expiry. Reading an
	// expired entry also triggers its eager removal.
	GetToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteToken removes an access token. Deleting a missing token is not an error.
	DeleteToken(ctx context.Context, token string) error

	// DeleteTokensByClient removes all access tokens owned by a client
	// (bulk revoke-by-owner) and returns the number removed.
	DeleteTokensByClient(ctx context.Context, clientID string) (int, error)
}

// RefreshTokenStore defines the interface for the refreshToken -> accessToken
// mapping. All methods accept context.Context for tracing and cancellation.
type RefreshTokenStore interface {
	// SaveRefreshToken stores a refresh token with expiry at now + ttl.
	// Returns ErrAlreadyExists if the key is still live.
	SaveRefreshToken(ctx context.Context, token *RefreshToken, ttl time.Duration) error

	// GetRefreshToken retrieves a copy of the stored refresh token, or an
	// error wrapping ErrRefreshTokenNotFound if absent or expired.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// DeleteRefreshToken removes a refresh token. Idempotent.
	DeleteRefreshToken(ctx context.Context, token string) error

	// DeleteRefreshTokensByClient removes all refresh tokens owned by a
	// client and returns the number removed.
	DeleteRefreshTokensByClient(ctx context.Context, clientID string) (int, error)

	// AtomicGetAndDeleteRefreshToken atomically retrieves and deletes a
	// refresh token. This is the synchronization point for rotate-on-use:
	// only ONE concurrent refresh request can succeed; all others receive an
	// error wrapping ErrRefreshTokenNotFound (or ErrExpired).
	// SECURITY: This operation MUST be atomic to prevent concurrent refresh attacks.
	AtomicGetAndDeleteRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
}

// FlowStore defines the interface for managing authorization codes.
// All methods accept context.Context for tracing and cancellation.
type FlowStore interface {
	// SaveAuthorizationCode stores an issued authorization code with expiry
	// at now + ttl. Returns ErrAlreadyExists if the key is still live.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode, ttl time.Duration) error

	// GetAuthorizationCode retrieves a copy of the stored code without
	// modifying it, or an error wrapping ErrAuthorizationCodeNotFound if
	// absent, or ErrExpired if past expiry.
	//
	// NOTE: For actual code exchange, use MarkAuthorizationCodeUsed instead
	// to prevent race conditions.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes an authorization code. Idempotent.
	DeleteAuthorizationCode(ctx context.Context, code string) error

	// MarkAuthorizationCodeUsed atomically checks that a code is unused and
	// flips its Used flag. Exactly one caller observes success; all
	// concurrent or subsequent callers receive ErrAuthorizationCodeUsed.
	// Returns ErrAuthorizationCodeNotFound if the code does not exist and an
	// error wrapping ErrExpired if it is past expiry. Once true, the Used
	// flag can never become false again.
	// SECURITY: This operation MUST be atomic to prevent concurrent code exchange attacks.
	MarkAuthorizationCodeUsed(ctx context.Context, code string) (*AuthorizationCode, error)
}

// Tx is a write transaction. Writes issued through the transaction are
// buffered and applied in issuance order only on Commit; Rollback discards
// them. Reads are deliberately NOT part of the transaction surface: callers
// read through the store itself and observe the current committed state, not
// the transaction's own pending writes (read-committed, not read-your-writes).
//
// A transaction is owned by one logical caller start-to-finish; it is not
// safe for concurrent use. Every method returns ErrTransactionClosed after
// Commit or Rollback.
type Tx interface {
	// ID returns the unique identifier of this transaction (for logging)
	ID() string

	SaveClient(client *Client) error
	DeleteClient(clientID string) error
	SaveToken(token *AccessToken, ttl time.Duration) error
	DeleteToken(token string) error
	SaveRefreshToken(token *RefreshToken, ttl time.Duration) error
	DeleteRefreshToken(token string) error
	SaveAuthorizationCode(code *AuthorizationCode, ttl time.Duration) error
	DeleteAuthorizationCode(code string) error

	// Commit applies the buffered writes in issuance order. If a buffered
	// write fails partway, the writes already applied remain (documented
	// limitation: commit is sequential, not all-or-nothing).
	Commit(ctx context.Context) error

	// Rollback discards all buffered writes.
	Rollback() error
}

// TransactionalStore is implemented by backends that support buffered write
// transactions.
type TransactionalStore interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// StatsProvider exposes live entity counts. Implementations should serve
// Stats from counters that do not contend with the store's write path
// (attempted no-wait read).
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Provider is the full storage contract the authorization server depends on.
// A pluggable backend (Redis/SQL) must preserve exactly this
// key/TTL/transaction contract.
type Provider interface {
	ClientStore
	TokenStore
	RefreshTokenStore
	FlowStore
	TransactionalStore
	StatsProvider

	// Connect prepares the backend for use and starts background expiry
	// sweeping. Idempotent.
	Connect(ctx context.Context) error

	// Disconnect stops the sweep loop and releases all outstanding scheduled
	// expiry work. Idempotent.
	Disconnect(ctx context.Context) error
}
