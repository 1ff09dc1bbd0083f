// Package httpapi exposes the security engine over JSON HTTP. It owns
// request decoding, the error envelope, client metadata extraction, bearer
// authentication, and the per-capability guard; all security decisions stay
// in the engine.
package httpapi
