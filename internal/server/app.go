// Package server wires the promoter together: it opens the database,
// prepares the schema, builds the notifier chain and the promotion engine,
// and runs promotion passes with retry on transient failures.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tierkeeper/internal/common"
	"github.com/dmitrijs2005/tierkeeper/internal/logging"
	"github.com/dmitrijs2005/tierkeeper/internal/server/config"
	"github.com/dmitrijs2005/tierkeeper/internal/server/models"
	"github.com/dmitrijs2005/tierkeeper/internal/server/notify"
	"github.com/dmitrijs2005/tierkeeper/internal/server/promotion"
	"github.com/dmitrijs2005/tierkeeper/internal/server/repositories/repomanager"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"
)

// PassRunner runs one promotion pass.
type PassRunner interface {
	RunPass(ctx context.Context) error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	logFile io.Closer
	manager repomanager.RepositoryManager
	engine  PassRunner
}

// logOutput is where the application logger writes.
var logOutput io.Writer = os.Stdout

// newS3Client is a seam for testing notify.NewS3Client.
var newS3Client = func(ctx context.Context, opts notify.S3Options) (notify.PutObjectAPI, error) {
	return notify.NewS3Client(ctx, opts)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	app := &App{config: c}

	out := logOutput
	if c.LogFile != "" {
		fw, err := logging.NewFileWriter(c.LogFile)
		if err != nil {
			return nil, fmt.Errorf("log init error: %w", err)
		}
		app.logFile = fw
		out = io.MultiWriter(logOutput, fw)
	}
	app.logger = logging.New(c.LogFormat, c.LogLevel, out)

	m, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN, app.logger)
	if err != nil {
		app.closeLog()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.manager = m

	if err := m.RunMigrations(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	notifier, err := buildNotifier(ctx, c, app.logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("notifier init error: %w", err)
	}

	rule := promotion.NewThresholdRule(models.Thresholds{
		MinLoginForSilver:   c.MinLoginForSilver,
		MinRecommendForGold: c.MinRecommendForGold,
	})
	app.engine = promotion.NewEngine(m.Users(), rule, notifier, app.logger)

	return app, nil
}

func buildNotifier(ctx context.Context, c *config.Config, logger logging.Logger) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if c.S3Bucket == "" {
		return notifiers, nil
	}

	client, err := newS3Client(ctx, notify.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, err
	}
	return append(notifiers, notify.NewS3Notifier(client, c.S3Bucket)), nil
}

// Manager exposes the repository manager, mainly for seeding and inspection.
func (app *App) Manager() repomanager.RepositoryManager {
	return app.manager
}

// RunOnce runs a promotion pass. A pass failing with common.ErrTransientIO
// has been rolled back in full, so it is retried with exponential backoff up
// to RetryAttempts more times. Any other error is returned immediately.
func (app *App) RunOnce(ctx context.Context) error {
	base := app.config.RetryBaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.WithMaxRetries(app.config.RetryAttempts, retry.NewExponential(base))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := app.engine.RunPass(ctx)
		if errors.Is(err, common.ErrTransientIO) {
			app.logger.Warn(ctx, "promotion pass failed, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run performs one pass, or with a Schedule configured keeps running passes
// on that schedule until ctx ends or SIGINT/SIGTERM/SIGQUIT arrives. The
// database is closed on return.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	defer func() {
		if err := app.Close(); err != nil {
			app.logger.Warn(ctx, "failed to close resources", "error", err)
		}
	}()

	if app.config.Schedule != "" {
		return app.runScheduled(ctx)
	}
	return app.runPass(ctx)
}

func (app *App) runPass(ctx context.Context) error {
	app.logger.Info(ctx, "Starting promotion pass...")
	if err := app.RunOnce(ctx); err != nil {
		app.logger.Error(ctx, "promotion pass failed", "error", err)
		return err
	}
	app.logger.Info(ctx, "Promotion pass finished")
	return nil
}

// runScheduled blocks until ctx is done. A failed pass is logged and the
// next scheduled pass still runs. cron skips a tick while a pass is running.
func (app *App) runScheduled(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(app.config.Schedule, func() { _ = app.runPass(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", app.config.Schedule, err)
	}

	app.logger.Info(ctx, "Promotion scheduler started", "schedule", app.config.Schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	app.logger.Info(ctx, "Promotion scheduler stopped")
	return nil
}

func (app *App) closeLog() {
	if app.logFile != nil {
		_ = app.logFile.Close()
	}
}

// Close releases the database pool and the log file.
func (app *App) Close() error {
	defer app.closeLog()
	return app.manager.Close()
}
