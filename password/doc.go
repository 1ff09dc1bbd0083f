// Package password hashes credentials with argon2id and verifies them
// against PHC-formatted encodings.
package password
