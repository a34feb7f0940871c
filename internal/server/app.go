// Package server wires the postdrop server together: storage, services,
// periodic tasks, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/postdrop/internal/logging"
	"github.com/avolkov/postdrop/internal/server/config"
	"github.com/avolkov/postdrop/internal/server/contentstore"
	"github.com/avolkov/postdrop/internal/server/notify"
	"github.com/avolkov/postdrop/internal/server/repositories/repomanager"
	"github.com/avolkov/postdrop/internal/server/scheduler"
	"github.com/avolkov/postdrop/internal/server/services"
)

// App owns the process lifetime: it opens and closes the database handle
// explicitly and runs the periodic tasks until a shutdown signal arrives.
// The identity and delivery services are exposed for the API layer.
type App struct {
	config    *config.Config
	logger    logging.Logger
	Identity  *services.IdentityService
	Delivery  *services.DeliveryService
	lifecycle *services.LifecycleService
	collector *services.CollectorService
	closeDB   func() error
}

// NewApp builds the full service graph from config. The database must be
// reachable: the connection is pinged and migrated before anything else runs.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	content, err := contentstore.NewS3Store(ctx, contentstore.S3Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("content store init error: %w", err)
	}

	dispatcher := notify.NewLogDispatcher(logger)

	return &App{
		config:   cfg,
		logger:   logger,
		Identity: services.NewIdentityService(db, rm),
		Delivery: services.NewDeliveryService(db, rm, dispatcher, logger),
		lifecycle: services.NewLifecycleService(db, rm, dispatcher, logger, services.SweepThresholds{
			EnterAfter:   cfg.EnterAfter,
			NearEndAfter: cfg.NearEndAfter,
			DeleteAfter:  cfg.DeleteAfter,
		}),
		collector: services.NewCollectorService(db, rm, content, logger),
		closeDB:   db.Close,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the periodic tasks and blocks until shutdown.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting postdrop server")
	app.initSignalHandler(cancelFunc)

	scheduler.New(app.logger).Start(ctx,
		scheduler.Task{
			Name:  "deletion-sweep",
			Every: app.config.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := app.lifecycle.RunSweep(ctx)
				return err
			},
		},
		scheduler.Task{
			Name:  "orphan-collect",
			Every: app.config.CollectInterval,
			Run: func(ctx context.Context) error {
				_, err := app.collector.CollectOrphans(ctx)
				return err
			},
		},
	)

	if err := app.closeDB(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "server stopped")
}
