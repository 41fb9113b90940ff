// Package id provides unique identifier generation utilities.
// This is the canonical source for ID generation across the codebase.
package id

import "github.com/google/uuid"

// Connection returns a new connection identifier. Connection IDs are
// UUIDv4 strings; uniqueness among live connections is guaranteed by
// the generator, not by the registry.
func Connection() string {
	return uuid.NewString()
}
