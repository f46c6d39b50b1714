// Package redis provides a Redis-backed implementation of the full
// storage.Provider contract for multi-instance deployments.
//
// Records are stored as JSON with native Redis TTLs, so expiry needs no
// sweep goroutine. Single-use semantics that the in-memory store guards
// with a mutex are enforced here with server-side Lua scripts: marking an
// authorization code used and the atomic get-and-delete of a refresh token
// each run as one script, so exactly one concurrent caller wins even with
// many processes sharing the same Redis.
package redis
