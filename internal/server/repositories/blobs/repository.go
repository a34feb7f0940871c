// Package blobs provides the PostgreSQL-backed blob metadata store.
package blobs

import (
	"context"

	"github.com/avolkov/postdrop/internal/server/models"
)

// Repository is the persistence interface for blob metadata. Reference
// membership is never counted in the blob rows themselves; it is derived by
// querying for messages that point at the blob.
type Repository interface {
	Create(ctx context.Context, blob *models.Blob) (*models.Blob, error)
	GetByPath(ctx context.Context, path string) (*models.Blob, error)
	// CountReferences reports how many messages currently reference the blob.
	CountReferences(ctx context.Context, blobID int64) (int64, error)
	// SelectOrphans returns every blob referenced by zero messages.
	SelectOrphans(ctx context.Context) ([]*models.Blob, error)
	// DeleteIfOrphan deletes the blob row only if it is still unreferenced at
	// delete time, reporting whether a row was removed. The guard keeps the
	// collector from racing an upload that attaches a message to the blob.
	DeleteIfOrphan(ctx context.Context, blobID int64) (bool, error)
}
