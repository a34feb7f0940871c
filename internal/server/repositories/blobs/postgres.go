package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avolkov/postdrop/internal/common"
	"github.com/avolkov/postdrop/internal/dbx"
	"github.com/avolkov/postdrop/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, blob *models.Blob) (*models.Blob, error) {
	query := `
		INSERT INTO blobs (path, size)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, blob.Path, blob.Size).Scan(&blob.ID, &blob.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return blob, nil
}

func (r *PostgresRepository) GetByPath(ctx context.Context, path string) (*models.Blob, error) {
	query := `SELECT id, path, size, created_at FROM blobs WHERE path = $1`

	blob := &models.Blob{}
	err := r.db.QueryRowContext(ctx, query, path).Scan(&blob.ID, &blob.Path, &blob.Size, &blob.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return blob, nil
}

func (r *PostgresRepository) CountReferences(ctx context.Context, blobID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE blob_id = $1`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, blobID).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (r *PostgresRepository) SelectOrphans(ctx context.Context) ([]*models.Blob, error) {
	query := `
		SELECT b.id, b.path, b.size, b.created_at
		FROM blobs b
		LEFT JOIN messages m ON m.blob_id = b.id
		WHERE m.id IS NULL
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select orphans: %w", err)
	}
	defer rows.Close()

	var result []*models.Blob
	for rows.Next() {
		var item models.Blob
		if err := rows.Scan(&item.ID, &item.Path, &item.Size, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteIfOrphan(ctx context.Context, blobID int64) (bool, error) {
	query := `
		DELETE FROM blobs
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM messages WHERE blob_id = $1)
	`
	res, err := r.db.ExecContext(ctx, query, blobID)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return common.ErrDuplicatePath
	}
	return fmt.Errorf("db error: %w", err)
}
