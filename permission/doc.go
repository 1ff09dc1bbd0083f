// Package permission implements the static role-based capability model.
// The role table is built once at construction and queried synchronously;
// unknown roles and unknown capability names fail closed.
package permission
