// Package otel bridges engine counters into an OpenTelemetry meter using
// observable instruments; values are pulled from a snapshot at collection
// time rather than pushed on every increment.
package otel
