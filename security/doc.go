// Package security provides the security primitives used by the authorization
// core: structured audit logging with mandatory secret redaction, the audit
// event taxonomy, per-identifier rate limiting for log-flood protection, and
// credential expiry helpers.
package security
