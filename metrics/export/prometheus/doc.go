// Package prometheus renders engine counters in Prometheus text exposition
// format. Nothing is registered in a global registry; callers mount the
// Handler wherever they serve metrics.
package prometheus
