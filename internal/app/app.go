// Package app assembles the local store, sync client, generator and
// scheduler from a Config.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/config"
	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/export"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/recurring"
	"github.com/kimhsiao/taskin/backend/internal/services"
	"github.com/kimhsiao/taskin/backend/internal/sync"
	"github.com/kimhsiao/taskin/backend/internal/sync/changelog"
	"github.com/kimhsiao/taskin/backend/internal/sync/conflict"
	"github.com/kimhsiao/taskin/backend/internal/sync/scheduler"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

// App holds every long-lived component of one device.
type App struct {
	Config    *config.Config
	UserID    models.UUID
	DeviceID  string
	Location  *time.Location
	DB        *db.DB
	Repo      *db.Repository
	ChangeLog *changelog.Log
	Tasks     *services.TaskService
	Backups   *export.Service
	Tokens    *sync.TokenStore
	Transport *sync.HTTPTransport
	Engine    *sync.SyncEngine
	Events    *sync.EventBus
	Generator *recurring.Generator
	Scheduler *scheduler.Scheduler
}

// Options tweaks Open.
type Options struct {
	// Memory opens a throwaway in-memory database instead of DataDir.
	Memory bool
}

// InitLogging configures the global logger from cfg.
func InitLogging(cfg *config.Config, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	logging.Init(out, logging.ParseLevel(cfg.Log.Level))
}

// Open opens the database and wires the components. The caller must Close
// the returned App.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if cfg.UserID == "" {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "user_id is not configured, run `taskin init`")
	}
	loc, err := cfg.Recurring.LoadLocation()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid recurring.location", err)
	}

	var database *db.DB
	if opts.Memory {
		database, err = db.OpenMemory()
	} else {
		database, err = db.Open(cfg.DataDir)
	}
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		UserID:   models.UUID(cfg.UserID),
		Location: loc,
		DB:       database,
		Repo:     db.NewRepository(database.DB),
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logging.Info("App opened", map[string]interface{}{
		"user_id":   string(a.UserID),
		"device_id": a.DeviceID,
		"data_dir":  cfg.DataDir,
		"memory":    opts.Memory,
	})
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	deviceID, err := a.resolveDeviceID(ctx)
	if err != nil {
		return err
	}
	a.DeviceID = deviceID

	a.ChangeLog = changelog.New(a.Repo, nil)
	if err := a.ChangeLog.Seed(ctx); err != nil {
		return err
	}
	a.Tasks = services.NewTaskService(a.Repo, a.ChangeLog)
	a.Backups = export.NewService(a.Repo, a.ChangeLog)
	if _, err := a.Tasks.EnsureDefaultCategories(ctx, a.UserID); err != nil {
		return err
	}

	a.Tokens = sync.NewTokenStore(a.Repo, deviceID).WithSecret(cfg.Sync.TokenKey)
	var token sync.TokenSource = a.Tokens
	if cfg.Sync.Token != "" {
		token = sync.StaticToken(cfg.Sync.Token)
	}
	a.Transport = sync.NewHTTPTransport(&sync.TransportConfig{
		BaseURL: cfg.Sync.ServerURL,
		Timeout: cfg.Sync.Timeout(),
	}, token)

	a.Events = sync.NewEventBus()
	a.Engine = sync.NewSyncEngine(a.Repo, a.ChangeLog, a.Transport, sync.EngineConfig{
		UserID:       a.UserID,
		Strategy:     conflict.ParseStrategy(cfg.Sync.Strategy),
		SafetyWindow: cfg.Sync.SafetyWindow(),
	})
	a.Engine.SetEventHandler(a.Events)

	a.Generator = recurring.NewGenerator(a.Tasks, recurring.Config{
		LookaheadIntervals: cfg.Recurring.LookaheadIntervals,
		MaxPerSeries:       cfg.Recurring.MaxPerSeries,
		Location:           a.Location,
	})

	a.Scheduler = scheduler.NewScheduler(a.Engine, a.Generator, a.Events, &scheduler.SchedulerConfig{
		UserID:       a.UserID,
		SyncInterval: cfg.Sync.Interval(),
		SyncTimeout:  cfg.Sync.Timeout(),
		GenerateSpec: cfg.Recurring.GenerateSpec,
		Location:     a.Location,
	})
	return nil
}

// resolveDeviceID prefers the configured id, then the stored one, and
// otherwise stores a fresh one.
func (a *App) resolveDeviceID(ctx context.Context) (string, error) {
	if a.Config.DeviceID != "" {
		return a.Config.DeviceID, nil
	}
	stored, ok, err := a.Repo.GetMetadata(ctx, db.MetaDeviceID)
	if err != nil {
		return "", err
	}
	if ok && stored != "" {
		return stored, nil
	}
	id := uuid.New()
	if err := a.Repo.SetMetadata(ctx, db.MetaDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Close stops the scheduler and closes the database.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
