// Package jwt issues and verifies the stateless access tokens that carry a
// principal's identity and role between requests.
package jwt
