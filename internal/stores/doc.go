// Package stores implements the redis-backed state the engine owns: device
// records, refresh tokens, password-reset tokens, backup codes, pending MFA
// login challenges, and the append-only audit trail.
//
// Every read-modify-write sequence runs inside a WATCH/TxPipelined loop so
// that concurrent requests touching the same key behave as if serialized:
// at most one device record is created per (principal, fingerprint), failure
// counters are never lost to a lost update, and single-use credentials are
// consumed exactly once.
//
// Tokens that must distinguish "expired" from "not found" are stored with a
// TTL beyond their logical expiry; the expiry check happens in code and the
// TTL only reaps garbage.
package stores
