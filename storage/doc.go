// Package storage provides interfaces and types for persisting OAuth credentials.
//
// The storage package defines the core contract implemented by every backend:
//   - ClientStore: Manages registered OAuth clients
//   - TokenStore: Manages issued access tokens
//   - RefreshTokenStore: Manages refresh token mappings
//   - FlowStore: Manages authorization codes, including atomic single-use consumption
//   - TransactionalStore: Buffered write transactions with read-committed semantics
//   - StatsProvider: Live entity counts without blocking on store locks
//
// The Provider interface is the union of all of the above plus lifecycle
// management (Connect/Disconnect). The authorization server depends only on
// Provider, so backends can be swapped without touching the flow logic.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory reference implementation for development, testing, and single-instance deployments
//   - storage/redis: Redis-backed distributed storage for production
package storage
