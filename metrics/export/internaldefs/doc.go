// Package internaldefs holds the shared counter definitions used by the
// exporter packages. Not intended for direct use.
package internaldefs
