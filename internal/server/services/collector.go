package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/avolkov/postdrop/internal/logging"
	"github.com/avolkov/postdrop/internal/server/contentstore"
	"github.com/avolkov/postdrop/internal/server/repositories/repomanager"
)

// CollectReport aggregates what one collector run reclaimed.
type CollectReport struct {
	// Count is the number of blob rows removed.
	Count int
	// TotalBytes is the summed size of the removed blobs.
	TotalBytes int64
	// ContentFailures counts blobs whose row was removed but whose content
	// deletion kept failing; retried on a later pass of the storage side.
	ContentFailures int
}

// CollectorService reclaims blobs no longer referenced by any message.
//
// Each row delete is a single statement guarded by a reference re-check, so
// the collector can run concurrently with ingestion: a blob whose first
// message is mid-creation is invisible (the upload commits blob and messages
// together), and a blob that gained a reference between scan and delete is
// left alone. Content deletion is requested only after the row delete
// committed; the row is the authoritative event, content removal is
// best-effort and idempotent on the storage side.
type CollectorService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	content     contentstore.Store
	logger      logging.Logger

	// mu keeps a single collection active at a time.
	mu sync.Mutex
}

// NewCollectorService constructs a CollectorService.
func NewCollectorService(db *sql.DB, m repomanager.RepositoryManager, cs contentstore.Store, l logging.Logger) *CollectorService {
	return &CollectorService{
		db:          db,
		repomanager: m,
		content:     cs,
		logger:      l.With("module", "collector"),
	}
}

// CollectOrphans scans for unreferenced blobs, deletes their rows, and
// requests deletion of their content. Safe to run repeatedly; a run that
// finds nothing reports zeros.
func (s *CollectorService) CollectOrphans(ctx context.Context) (CollectReport, error) {
	if !s.mu.TryLock() {
		s.logger.Debug(ctx, "collection already running, skipping")
		return CollectReport{}, nil
	}
	defer s.mu.Unlock()

	repo := s.repomanager.Blobs(s.db)

	orphans, err := repo.SelectOrphans(ctx)
	if err != nil {
		return CollectReport{}, err
	}

	var report CollectReport
	for _, blob := range orphans {
		deleted, err := repo.DeleteIfOrphan(ctx, blob.ID)
		if err != nil {
			// One bad row must not fail the whole pass.
			s.logger.Warn(ctx, "orphan delete failed", "blob_id", blob.ID, "error", err)
			continue
		}
		if !deleted {
			// The blob picked up a reference between scan and delete.
			continue
		}

		report.Count++
		report.TotalBytes += blob.Size

		if err := s.deleteContent(ctx, blob.Path); err != nil {
			s.logger.Warn(ctx, "content delete failed", "path", blob.Path, "error", err)
			report.ContentFailures++
		}
	}

	if report.Count > 0 || report.ContentFailures > 0 {
		s.logger.Info(ctx, "collection finished",
			"count", report.Count, "total_bytes", report.TotalBytes,
			"content_failures", report.ContentFailures)
	}
	return report, nil
}

// deleteContent asks the content store to drop the bytes at path, retrying
// transient failures with backoff. "Already absent" is success and is handled
// inside the store.
func (s *CollectorService) deleteContent(ctx context.Context, path string) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.content.Delete(ctx, path); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
