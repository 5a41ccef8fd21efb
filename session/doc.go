// Package session provides the session model, opaque token generation, a compact binary
// encoding, and Redis-backed persistence for issued sessions.
//
// # Binary encoding
//
// Sessions are stored in Redis in a small length-prefixed binary format with a leading
// schema byte. Decoders reject unknown schema versions rather than guessing.
//
// # Revocation fan-out
//
// [Broadcaster] publishes revoked tokens on a Redis channel so that every process
// holding a local session cache can evict them immediately.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// cache validated sessions, look up users, or decide whether a request is
// authenticated; those responsibilities belong to the Manager.
//
// # What this package must NOT do
//
//   - Import crossauth, cache, cookie, or middleware (no upward imports).
//   - Extend a session's expiry on read.
//   - Use IP address or user agent for validation decisions.
package session
