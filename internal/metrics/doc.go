// Package metrics provides lock-free counters for authcore observability.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. Export (Prometheus text format, OTel instruments) lives in
// metrics/export/ and reads Snapshot values; this package performs no I/O
// and imports no sibling package.
package metrics
