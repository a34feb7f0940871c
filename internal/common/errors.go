// Package common defines shared constants and sentinel errors used across
// postdrop components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Identity errors.
	ErrMissingIdentity  = errors.New("neither username nor wordlist id supplied")
	ErrIdentityConflict = errors.New("identity already taken")

	// Blob and message errors.
	ErrDuplicatePath      = errors.New("blob path already exists")
	ErrDuplicateMessageID = errors.New("message id already stored")
	ErrUnknownReference   = errors.New("reference to unknown user or blob")

	// ErrInvalidTransition marks a status change that would not increase the
	// delivery status. It never crosses the service boundary; callers of the
	// services see such transitions as silent no-ops.
	ErrInvalidTransition = errors.New("status transition would not advance")

	// ErrStorageUnavailable means the persistent store could not be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
