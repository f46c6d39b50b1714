// Package memory provides the in-memory reference implementation of the full
// storage.Provider contract. It is suitable for development, testing, and
// single-instance deployments.
//
// Every read-modify-write sequence (code consumption, expiry-check-then-
// delete, collision checks on save) runs under one store-wide mutex, so the
// atomicity the contract demands holds under real OS threads, not just a
// cooperative scheduler. Expiry uses a single min-heap swept by one periodic
// goroutine plus lazy expiry-on-read; there are no per-entry timers.
package memory
