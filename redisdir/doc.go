// Package redisdir provides a redis-backed implementation of the engine's
// user directory, for deployments that keep principal records next to the
// security stores instead of a relational database.
package redisdir
