// Package users provides the PostgreSQL-backed identity store.
package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/avolkov/postdrop/internal/server/models"
)

// Repository is the persistence interface for user identities. The uid is
// immutable: no operation here or elsewhere may change it once assigned.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUID(ctx context.Context, uid uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByWordlistID(ctx context.Context, wordlistID int64) (*models.User, error)
	UpdateUsername(ctx context.Context, uid uuid.UUID, username string) error
	SetLookupAllowed(ctx context.Context, uid uuid.UUID, allowed bool) error
	// SetWordlistID assigns a freshly allocated wordlist id. Regeneration
	// only: the identity service never edits an id in place.
	SetWordlistID(ctx context.Context, uid uuid.UUID, wordlistID int64) error
}
