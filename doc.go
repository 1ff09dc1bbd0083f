// Package authcore is the security core of the agilepm project-management
// backend. It decides whether a login is trustworthy, enforces a second
// authentication factor, issues and revokes session credentials, and gates
// privileged actions through a static role-based permission table.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types (Principal, DeviceRecord, AuditEntry,
// etc.). All internal coordination (redis stores, audit dispatch, metrics)
// lives under internal/ and is never exported.
//
// Principal records are owned by the embedding application and reached
// through the [UserDirectory] interface. Everything the engine owns itself
// (device records, refresh tokens, reset tokens, backup codes, pending MFA
// challenges, the audit trail) lives in redis so that multiple instances
// share one view of session state.
//
// # What this package must NOT do
//
//   - Expose redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Decide HTTP status codes; the httpapi subpackage owns the boundary.
package authcore
