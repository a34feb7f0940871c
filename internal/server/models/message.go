package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one recipient's delivery record for one payload. A broadcast is
// stored as N messages, one per addressee, all pointing at the same blob.
type Message struct {
	// ID is the database row id.
	ID int64
	// MessageID is assigned by the sender, unique, and used to deduplicate
	// retried uploads.
	MessageID uuid.UUID
	// ReceivedAt is when the server finished storing the message. All
	// timeout computations use this clock, never the client-claimed
	// composition time.
	ReceivedAt time.Time
	// SessionKey is the encrypted content-encryption key for the blob.
	// Stored verbatim, never interpreted.
	SessionKey []byte
	// BlobID references the shared blob. Nil once the reference has been
	// released by the deletion pipeline.
	BlobID *int64
	// AddresseeID is the row id of the receiving user.
	AddresseeID int64
	// Status is the current position in the delivery lifecycle.
	Status DeliveryStatus
}

// DueMessage is the slice of a message the lifecycle sweep works with:
// enough to apply a guarded transition and notify the addressee.
type DueMessage struct {
	ID           int64
	MessageID    uuid.UUID
	AddresseeUID uuid.UUID
}
