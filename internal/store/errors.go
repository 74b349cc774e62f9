package store

import "errors"

// Sentinel errors for durable store operations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrNoPendingWork is returned by ClaimNextPending when the outbox is
	// empty; callers treat it as "nothing to do", not a failure.
	ErrNoPendingWork = errors.New("no pending outbox work")

	// ErrCursorNotAdvancing is returned by AdvanceCursor when the proposed
	// cursor does not strictly exceed the stored one. This is a no-op
	// from the caller's point of view, not a hard failure; the ingester
	// treats it as informational.
	ErrCursorNotAdvancing = errors.New("cursor does not strictly advance")
)
