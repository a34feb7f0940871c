// Package services contains the server-side business logic: identity
// management, message ingestion, delivery-status transitions, the timed
// deletion sweep, and orphan collection.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/avolkov/postdrop/internal/common"
	"github.com/avolkov/postdrop/internal/server/models"
	"github.com/avolkov/postdrop/internal/server/repositories/repomanager"
)

// newUID is a seam for testing uid generation.
var newUID = uuid.New

// IdentityService owns user identity records and their invariants. The
// "username or wordlist id" rule is validated here, before any write, so the
// check lives in exactly one place.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager) *IdentityService {
	return &IdentityService{db: db, repomanager: m}
}

// CreateUserParams carries the caller-supplied part of a new identity.
// The uid is always generated server-side.
type CreateUserParams struct {
	Username      *string
	WordlistID    *int64
	PublicKey     []byte
	Algorithm     string
	LookupAllowed bool
}

// CreateUser registers a new identity. It fails with ErrMissingIdentity when
// neither username nor wordlist id is supplied and with ErrIdentityConflict
// when either collides with an existing unique value.
func (s *IdentityService) CreateUser(ctx context.Context, p CreateUserParams) (*models.User, error) {
	if p.Username == nil && p.WordlistID == nil {
		return nil, common.ErrMissingIdentity
	}

	user := &models.User{
		UID:           newUID(),
		Username:      p.Username,
		WordlistID:    p.WordlistID,
		LookupAllowed: p.LookupAllowed,
		PublicKey:     p.PublicKey,
		Algorithm:     p.Algorithm,
	}

	repo := s.repomanager.Users(s.db)
	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrIdentityConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// FindByUID resolves a user by public uid. This always works, regardless of
// the user's discovery settings.
func (s *IdentityService) FindByUID(ctx context.Context, uid uuid.UUID) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByUID(ctx, uid)
}

// FindByUsername resolves a user by exact username.
func (s *IdentityService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByUsername(ctx, username)
}

// FindByWordlistID resolves a user by wordlist id.
func (s *IdentityService) FindByWordlistID(ctx context.Context, wordlistID int64) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByWordlistID(ctx, wordlistID)
}

// SearchByUsername is the discovery variant of FindByUsername: users who
// disabled username lookup are reported as not found.
func (s *IdentityService) SearchByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.LookupAllowed {
		return nil, common.ErrNotFound
	}
	return user, nil
}

// UpdateUsername changes the user's chosen identifier.
func (s *IdentityService) UpdateUsername(ctx context.Context, uid uuid.UUID, username string) error {
	return s.repomanager.Users(s.db).UpdateUsername(ctx, uid, username)
}

// SetLookupAllowed toggles discoverability by username search.
func (s *IdentityService) SetLookupAllowed(ctx context.Context, uid uuid.UUID, allowed bool) error {
	return s.repomanager.Users(s.db).SetLookupAllowed(ctx, uid, allowed)
}

// RegenerateWordlistID allocates a fresh wordlist id for the user. The old
// value is replaced, never edited in place, and collisions with other users'
// ids are retried with a new draw.
func (s *IdentityService) RegenerateWordlistID(ctx context.Context, uid uuid.UUID) (int64, error) {
	repo := s.repomanager.Users(s.db)

	var assigned int64
	backoff := retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		candidate, err := common.RandInt63()
		if err != nil {
			return err
		}
		if err := repo.SetWordlistID(ctx, uid, candidate); err != nil {
			if errors.Is(err, common.ErrIdentityConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		assigned = candidate
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}
