package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
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

func (r *PostgresRepository) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (message_id, received_at, session_key, blob_id, addressee_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		msg.MessageID, msg.ReceivedAt, msg.SessionKey, msg.BlobID, msg.AddresseeID, msg.Status,
	).Scan(&msg.ID)
	if err != nil {
		// DO NOTHING returns no row for a retried message id.
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrDuplicateMessageID
		}
		return mapError(err)
	}
	return nil
}

func (r *PostgresRepository) GetByMessageID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	query := `
		SELECT id, message_id, received_at, session_key, blob_id, addressee_id, status
		FROM messages
		WHERE message_id = $1
	`
	msg := &models.Message{}
	var blobID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, messageID).Scan(
		&msg.ID, &msg.MessageID, &msg.ReceivedAt, &msg.SessionKey,
		&blobID, &msg.AddresseeID, &msg.Status,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if blobID.Valid {
		msg.BlobID = &blobID.Int64
	}
	return msg, nil
}

func (r *PostgresRepository) ListByAddressee(ctx context.Context, addresseeID int64) ([]*models.Message, error) {
	query := `
		SELECT id, message_id, received_at, session_key, blob_id, addressee_id, status
		FROM messages
		WHERE addressee_id = $1 AND status < ` + statusLiteral(models.StatusDeletedWithoutDelivery) + `
		ORDER BY received_at
	`
	rows, err := r.db.QueryContext(ctx, query, addresseeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var item models.Message
		var blobID sql.NullInt64
		if err := rows.Scan(
			&item.ID, &item.MessageID, &item.ReceivedAt, &item.SessionKey,
			&blobID, &item.AddresseeID, &item.Status,
		); err != nil {
			return nil, err
		}
		if blobID.Valid {
			item.BlobID = &blobID.Int64
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Advance(ctx context.Context, messageID uuid.UUID, to models.DeliveryStatus, from ...models.DeliveryStatus) (bool, error) {
	query := `UPDATE messages SET status = $2 WHERE message_id = $1 AND status IN (` + statusList(from) + `)`

	res, err := r.db.ExecContext(ctx, query, messageID, to)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// Nothing moved: either the record is gone or another writer got there
	// first. Distinguish the two for the caller.
	var status models.DeliveryStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM messages WHERE message_id = $1`, messageID).Scan(&status)
	if err != nil {
		return false, mapError(err)
	}
	return false, nil
}

func (r *PostgresRepository) SelectDue(ctx context.Context, cutoff time.Time, from ...models.DeliveryStatus) ([]*models.DueMessage, error) {
	query := `
		SELECT m.id, m.message_id, u.uid
		FROM messages m
		JOIN users u ON u.id = m.addressee_id
		WHERE m.received_at <= $1 AND m.status IN (` + statusList(from) + `)
		ORDER BY m.received_at
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select due messages: %w", err)
	}
	defer rows.Close()

	var result []*models.DueMessage
	for rows.Next() {
		var item models.DueMessage
		if err := rows.Scan(&item.ID, &item.MessageID, &item.AddresseeUID); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) AdvanceByID(ctx context.Context, id int64, to models.DeliveryStatus, from ...models.DeliveryStatus) (bool, error) {
	query := `UPDATE messages SET status = $2 WHERE id = $1 AND status IN (` + statusList(from) + `)`
	return r.exec(ctx, query, id, to)
}

func (r *PostgresRepository) AdvanceToDeleted(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE messages SET status = $2, blob_id = NULL
		WHERE id = $1 AND status = ` + statusLiteral(models.StatusNearEndDeletionList)
	return r.exec(ctx, query, id, models.StatusDeletedWithoutDelivery)
}

func (r *PostgresRepository) Delete(ctx context.Context, messageID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = $1`, messageID)
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

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// statusList renders status codes as an IN-list. Statuses are compile-time
// constants, never user input.
func statusList(statuses []models.DeliveryStatus) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = statusLiteral(s)
	}
	return strings.Join(parts, ", ")
}

func statusLiteral(s models.DeliveryStatus) string {
	return strconv.Itoa(int(s))
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return common.ErrDuplicateMessageID
		case "23503":
			return common.ErrUnknownReference
		}
	}
	return fmt.Errorf("db error: %w", err)
}
