package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/postdrop/internal/common"
	"github.com/avolkov/postdrop/internal/dbx"
	"github.com/avolkov/postdrop/internal/logging"
	"github.com/avolkov/postdrop/internal/server/models"
	"github.com/avolkov/postdrop/internal/server/notify"
	"github.com/avolkov/postdrop/internal/server/repositories/repomanager"
)

// timeNow is a seam for testing the server clock.
var timeNow = time.Now

// DeliveryService owns message ingestion and the client-driven delivery
// confirmations.
type DeliveryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	dispatcher  notify.Dispatcher
	logger      logging.Logger
}

// NewDeliveryService constructs a DeliveryService.
func NewDeliveryService(db *sql.DB, m repomanager.RepositoryManager, d notify.Dispatcher, l logging.Logger) *DeliveryService {
	return &DeliveryService{
		db:          db,
		repomanager: m,
		dispatcher:  d,
		logger:      l.With("module", "delivery"),
	}
}

// UploadRecipient is one addressee of an upload: the sender-assigned message
// id, the receiving user, and the content key encrypted to that user.
type UploadRecipient struct {
	MessageID    uuid.UUID
	AddresseeUID uuid.UUID
	SessionKey   []byte
}

// UploadRequest describes one stored payload addressed to one or more users.
// A broadcast reuses a single blob for every recipient.
type UploadRequest struct {
	Path       string
	Size       int64
	Recipients []UploadRecipient
}

// UploadResult reports what an upload changed.
type UploadResult struct {
	Blob *models.Blob
	// Stored is the number of newly created message records.
	Stored int
	// Duplicates counts recipients whose message id was already stored;
	// those are retries and succeed as no-ops.
	Duplicates int
}

type pendingNotification struct {
	addressee uuid.UUID
	messageID uuid.UUID
}

// Upload stores a blob and one message per recipient in a single transaction,
// so the collector can never observe the blob without its first referencing
// message. ReceivedAt is the server clock at storage time; the client-claimed
// composition time is never trusted for timeouts. An addressee that does not
// exist fails the whole upload with ErrUnknownReference and nothing commits.
func (s *DeliveryService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("blob path is required")
	}
	if len(req.Recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	result := &UploadResult{}
	var notifications []pendingNotification

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		userRepo := s.repomanager.Users(tx)
		blobRepo := s.repomanager.Blobs(tx)
		msgRepo := s.repomanager.Messages(tx)

		// Reuse the blob when a previous send already stored this path, as
		// with a later recipient of the same broadcast.
		blob, err := blobRepo.GetByPath(ctx, req.Path)
		if errors.Is(err, common.ErrNotFound) {
			blob, err = blobRepo.Create(ctx, &models.Blob{Path: req.Path, Size: req.Size})
		}
		if err != nil {
			return err
		}
		result.Blob = blob

		receivedAt := timeNow().UTC()
		for _, rcpt := range req.Recipients {
			addressee, err := userRepo.GetByUID(ctx, rcpt.AddresseeUID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return fmt.Errorf("%w: addressee %s", common.ErrUnknownReference, rcpt.AddresseeUID)
				}
				return err
			}

			msg := &models.Message{
				MessageID:   rcpt.MessageID,
				ReceivedAt:  receivedAt,
				SessionKey:  rcpt.SessionKey,
				BlobID:      &blob.ID,
				AddresseeID: addressee.ID,
				Status:      models.StatusCreated,
			}
			if err := msgRepo.Create(ctx, msg); err != nil {
				if errors.Is(err, common.ErrDuplicateMessageID) {
					result.Duplicates++
					continue
				}
				return err
			}
			result.Stored++
			notifications = append(notifications, pendingNotification{
				addressee: rcpt.AddresseeUID,
				messageID: rcpt.MessageID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Dispatch only after the transaction is committed.
	for _, n := range notifications {
		s.dispatcher.MessageWaiting(ctx, n.addressee, n.messageID)
	}
	return result, nil
}

// MarkNotified records that the addressee's device received the delivery
// notification.
func (s *DeliveryService) MarkNotified(ctx context.Context, messageID uuid.UUID) error {
	return s.mark(ctx, messageID, models.StatusNotified,
		models.StatusCreated)
}

// MarkDelivered records that the addressee's device downloaded the payload.
func (s *DeliveryService) MarkDelivered(ctx context.Context, messageID uuid.UUID) error {
	return s.mark(ctx, messageID, models.StatusDelivered,
		models.StatusCreated, models.StatusNotified)
}

// MarkRead records that the message was presented to the user. Clients may
// never send this depending on privacy settings; its absence means nothing.
func (s *DeliveryService) MarkRead(ctx context.Context, messageID uuid.UUID) error {
	return s.mark(ctx, messageID, models.StatusRead,
		models.StatusCreated, models.StatusNotified, models.StatusDelivered)
}

// mark applies one guarded transition. A transition that lost a race, or that
// would not increase the status, is dropped silently: whichever writer
// committed first wins and the final status is never lowered.
func (s *DeliveryService) mark(ctx context.Context, messageID uuid.UUID, to models.DeliveryStatus, from ...models.DeliveryStatus) error {
	advanced, err := s.repomanager.Messages(s.db).Advance(ctx, messageID, to, from...)
	if err != nil {
		return err
	}
	if !advanced {
		s.logger.Debug(ctx, "transition dropped", "message_id", messageID, "to", to)
	}
	return nil
}

// ListInbox returns the pending message records for an addressee, oldest
// first. Serving them to devices is the API layer's job.
func (s *DeliveryService) ListInbox(ctx context.Context, addressee uuid.UUID) ([]*models.Message, error) {
	user, err := s.repomanager.Users(s.db).GetByUID(ctx, addressee)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Messages(s.db).ListByAddressee(ctx, user.ID)
}

// Remove deletes a message record outright, releasing its blob reference with
// the row. The surrounding API layer calls this for post-delivery cleanup;
// when the last reference goes, the orphan collector reclaims the blob.
func (s *DeliveryService) Remove(ctx context.Context, messageID uuid.UUID) error {
	return s.repomanager.Messages(s.db).Delete(ctx, messageID)
}
