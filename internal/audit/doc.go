// Package audit defines the audit entry model, pluggable sinks, and the
// asynchronous dispatcher that feeds them.
package audit
