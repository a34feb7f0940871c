// Package models defines the server-side entities persisted in the database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a messaging and discovery unit. It does not need to be a single
// person; it is an identity, a public key reachable by username or wordlist id.
//
// At least one of Username and WordlistID must be set at all times. The
// identity service validates that rule before any write.
type User struct {
	// ID is the database row id, never exposed to clients.
	ID int64
	// UID is the public user id, generated by the server. It can always be
	// used to find a user regardless of discovery settings and never changes
	// once assigned. Clients should store it persistently.
	UID uuid.UUID
	// Username is the user's chosen identifier, unique when present. May be
	// changed at the user's request.
	Username *string
	// WordlistID is an alternative identifier drawn from a fixed vocabulary,
	// unique when present. It can be regenerated but never edited in place.
	WordlistID *int64
	// LookupAllowed controls whether the user appears in username searches.
	LookupAllowed bool
	// PublicKey is used by others to encrypt data to this user.
	PublicKey []byte
	// Algorithm is reserved for future multi-algorithm support and is
	// currently unconstrained.
	Algorithm string

	CreatedAt time.Time
}

// HasIdentity reports whether the user carries at least one lookup identity.
func (u *User) HasIdentity() bool {
	return u.Username != nil || u.WordlistID != nil
}
