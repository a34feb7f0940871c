// Package scheduler runs named periodic tasks on a fixed cadence until the
// context is cancelled.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/avolkov/postdrop/internal/logging"
)

// Task is one periodic job. Run is invoked once per tick; a task that must
// not overlap itself guards its own body (the services use TryLock), since a
// slow run can outlive the next tick.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler drives a set of Tasks. Task errors are logged, never fatal: one
// failed sweep should not take the process down.
type Scheduler struct {
	logger logging.Logger
}

func New(logger logging.Logger) *Scheduler {
	return &Scheduler{logger: logger.With("module", "scheduler")}
}

// Start launches one goroutine per task and blocks until ctx is cancelled
// and every task loop has stopped.
func (s *Scheduler) Start(ctx context.Context, tasks ...Task) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			s.runLoop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, task Task) {
	s.logger.Info(ctx, "task started", "task", task.Name, "every", task.Every)

	ticker := time.NewTicker(task.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "task stopped", "task", task.Name)
			return
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				s.logger.Error(ctx, "task run failed", "task", task.Name, "error", err)
			}
		}
	}
}
