// Package repository defines the shared error vocabulary between service
// packages and their storage implementations. Services compare with
// errors.Is and never import a concrete backend.
package repository

import "errors"

var (
	// ErrNotFound means the referenced row does not exist for the tenant.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate means a unique constraint rejected the insert. For raw
	// events this is the idempotency signal, not a failure.
	ErrDuplicate = errors.New("duplicate")

	// ErrStaleState means a conditional update matched zero rows because the
	// caller's asserted current state no longer holds.
	ErrStaleState = errors.New("stale state")

	// ErrAtCapacity means a capacity-guarded increment lost the race or the
	// ceiling is reached.
	ErrAtCapacity = errors.New("at capacity")
)
