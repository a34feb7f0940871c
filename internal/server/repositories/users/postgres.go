package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avolkov/postdrop/internal/common"
	"github.com/avolkov/postdrop/internal/dbx"
	"github.com/avolkov/postdrop/internal/server/models"
)

const userColumns = `id, uid, username, wordlist_id, lookup_allowed, public_key, algorithm, created_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (uid, username, wordlist_id, lookup_allowed, public_key, algorithm)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.UID, user.Username, user.WordlistID, user.LookupAllowed, user.PublicKey, user.Algorithm,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByUID(ctx context.Context, uid uuid.UUID) (*models.User, error) {
	return r.getBy(ctx, `uid = $1`, uid)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, `username = $1`, username)
}

func (r *PostgresRepository) GetByWordlistID(ctx context.Context, wordlistID int64) (*models.User, error) {
	return r.getBy(ctx, `wordlist_id = $1`, wordlistID)
}

func (r *PostgresRepository) getBy(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user := &models.User{}
	var username sql.NullString
	var wordlistID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.UID, &username, &wordlistID,
		&user.LookupAllowed, &user.PublicKey, &user.Algorithm, &user.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if username.Valid {
		user.Username = &username.String
	}
	if wordlistID.Valid {
		user.WordlistID = &wordlistID.Int64
	}
	return user, nil
}

func (r *PostgresRepository) UpdateUsername(ctx context.Context, uid uuid.UUID, username string) error {
	return r.update(ctx, `UPDATE users SET username = $2 WHERE uid = $1`, uid, username)
}

func (r *PostgresRepository) SetLookupAllowed(ctx context.Context, uid uuid.UUID, allowed bool) error {
	return r.update(ctx, `UPDATE users SET lookup_allowed = $2 WHERE uid = $1`, uid, allowed)
}

func (r *PostgresRepository) SetWordlistID(ctx context.Context, uid uuid.UUID, wordlistID int64) error {
	return r.update(ctx, `UPDATE users SET wordlist_id = $2 WHERE uid = $1`, uid, wordlistID)
}

func (r *PostgresRepository) update(ctx context.Context, query string, uid uuid.UUID, arg any) error {
	res, err := r.db.ExecContext(ctx, query, uid, arg)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// mapError translates driver errors into the shared sentinels. Any unique
// violation on users means an identity value is already taken.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return common.ErrIdentityConflict
	}
	return fmt.Errorf("db error: %w", err)
}
