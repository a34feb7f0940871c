package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/avolkov/postdrop/internal/logging"
	"github.com/avolkov/postdrop/internal/server/models"
	"github.com/avolkov/postdrop/internal/server/notify"
	"github.com/avolkov/postdrop/internal/server/repositories/repomanager"
)

// SweepThresholds are the three ascending deletion timeouts, all measured
// from the message's ReceivedAt.
type SweepThresholds struct {
	// EnterAfter moves an undelivered message onto the deletion list.
	EnterAfter time.Duration
	// NearEndAfter marks it as close to deletion.
	NearEndAfter time.Duration
	// DeleteAfter deletes it without delivery.
	DeleteAfter time.Duration
}

// SweepReport aggregates what one sweep run did.
type SweepReport struct {
	Entered int
	NearEnd int
	Deleted int
	// Anomalies counts rows that failed their transition and were skipped.
	Anomalies int
}

// LifecycleService drives the timeout half of the delivery state machine.
// Each transition is a guarded single-statement update, so a sweep is
// idempotent per threshold: re-running it cannot re-fire a side effect, and a
// run killed halfway is safe to resume at the next tick. A sweep never
// touches DELIVERED or READ rows.
type LifecycleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	dispatcher  notify.Dispatcher
	logger      logging.Logger
	thresholds  SweepThresholds

	// mu keeps a single sweep active at a time; an overlapping run is
	// skipped, not queued.
	mu sync.Mutex
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(db *sql.DB, m repomanager.RepositoryManager, d notify.Dispatcher, l logging.Logger, t SweepThresholds) *LifecycleService {
	return &LifecycleService{
		db:          db,
		repomanager: m,
		dispatcher:  d,
		logger:      l.With("module", "lifecycle"),
		thresholds:  t,
	}
}

// RunSweep applies the timeout transitions due at the current server time.
// Passes run in ascending threshold order, so a record far past several
// thresholds catches up within one run, firing each threshold's side effect
// exactly once.
func (s *LifecycleService) RunSweep(ctx context.Context) (SweepReport, error) {
	if !s.mu.TryLock() {
		s.logger.Debug(ctx, "sweep already running, skipping")
		return SweepReport{}, nil
	}
	defer s.mu.Unlock()

	now := timeNow().UTC()
	var report SweepReport

	if err := s.runPass(ctx, sweepPass{
		cutoff:  now.Add(-s.thresholds.EnterAfter),
		to:      models.StatusEnterDeletionList,
		from:    []models.DeliveryStatus{models.StatusCreated, models.StatusNotified},
		counter: &report.Entered,
	}, &report); err != nil {
		return report, err
	}

	if err := s.runPass(ctx, sweepPass{
		cutoff:  now.Add(-s.thresholds.NearEndAfter),
		to:      models.StatusNearEndDeletionList,
		from:    []models.DeliveryStatus{models.StatusCreated, models.StatusNotified, models.StatusEnterDeletionList},
		counter: &report.NearEnd,
	}, &report); err != nil {
		return report, err
	}

	if err := s.runPass(ctx, sweepPass{
		cutoff:  now.Add(-s.thresholds.DeleteAfter),
		to:      models.StatusDeletedWithoutDelivery,
		from:    []models.DeliveryStatus{models.StatusNearEndDeletionList},
		counter: &report.Deleted,
	}, &report); err != nil {
		return report, err
	}

	s.logger.Info(ctx, "sweep finished",
		"entered", report.Entered, "near_end", report.NearEnd,
		"deleted", report.Deleted, "anomalies", report.Anomalies)
	return report, nil
}

type sweepPass struct {
	cutoff  time.Time
	to      models.DeliveryStatus
	from    []models.DeliveryStatus
	counter *int
}

func (s *LifecycleService) runPass(ctx context.Context, pass sweepPass, report *SweepReport) error {
	repo := s.repomanager.Messages(s.db)

	due, err := repo.SelectDue(ctx, pass.cutoff, pass.from...)
	if err != nil {
		return err
	}

	for _, msg := range due {
		var advanced bool
		var err error
		if pass.to == models.StatusDeletedWithoutDelivery {
			// The final transition also releases the blob reference, making
			// the blob a candidate for the orphan collector.
			advanced, err = repo.AdvanceToDeleted(ctx, msg.ID)
		} else {
			advanced, err = repo.AdvanceByID(ctx, msg.ID, pass.to, pass.from...)
		}
		if err != nil {
			// One bad row must not fail the sweep; skip it and account for it.
			s.logger.Warn(ctx, "sweep transition failed",
				"message_id", msg.MessageID, "to", pass.to, "error", err)
			report.Anomalies++
			continue
		}
		if !advanced {
			// Lost a race with a delivery confirmation or an earlier sweep.
			continue
		}

		*pass.counter++
		switch pass.to {
		case models.StatusDeletedWithoutDelivery:
			s.dispatcher.MessageDeleted(ctx, msg.AddresseeUID, msg.MessageID)
		default:
			// A last call to pick the message up before it is deleted.
			s.dispatcher.MessageWaiting(ctx, msg.AddresseeUID, msg.MessageID)
		}
	}
	return nil
}
