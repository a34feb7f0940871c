// Package messages provides the PostgreSQL-backed message record store and
// the guarded status-transition primitives the delivery lifecycle builds on.
package messages

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/postdrop/internal/server/models"
)

// Repository is the persistence interface for message delivery records.
//
// Every transition primitive is a single guarded statement: the row moves
// only when its current status is one of the expected source states, so
// concurrent writers serialize on the row and a losing transition is simply
// dropped. Status never decreases.
type Repository interface {
	// Create inserts the message, treating a duplicate message id as a
	// no-op: the row is left untouched and ErrDuplicateMessageID is
	// returned so the caller can count the retry.
	Create(ctx context.Context, msg *models.Message) error
	GetByMessageID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
	// ListByAddressee returns the undeleted records addressed to a user,
	// oldest first. This is the inbox boundary query for the API layer.
	ListByAddressee(ctx context.Context, addresseeID int64) ([]*models.Message, error)

	// Advance moves the message to status `to` when its current status is in
	// `from`, reporting whether the row changed. A missing row is ErrNotFound.
	Advance(ctx context.Context, messageID uuid.UUID, to models.DeliveryStatus, from ...models.DeliveryStatus) (bool, error)

	// SelectDue returns messages received at or before cutoff whose status is
	// in `from`, joined to the addressee uid for notification dispatch.
	SelectDue(ctx context.Context, cutoff time.Time, from ...models.DeliveryStatus) ([]*models.DueMessage, error)
	// AdvanceByID is Advance keyed by row id, used by the sweep.
	AdvanceByID(ctx context.Context, id int64, to models.DeliveryStatus, from ...models.DeliveryStatus) (bool, error)
	// AdvanceToDeleted moves NEAR_END_DELETION_LIST to
	// DELETED_WITHOUT_DELIVERY and releases the blob reference in the same
	// statement, reporting whether the row changed.
	AdvanceToDeleted(ctx context.Context, id int64) (bool, error)

	// Delete removes the record, releasing its blob reference with the row.
	Delete(ctx context.Context, messageID uuid.UUID) error
}
