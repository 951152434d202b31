// Package scheduler drives sync cycles and recurring generation from
// periodic, foreground and reconnect triggers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	syncpkg "github.com/kimhsiao/taskin/backend/internal/sync"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerPeriodic   Trigger = "periodic"
	TriggerForeground Trigger = "foreground"
	TriggerReconnect  Trigger = "reconnect"
	TriggerManual     Trigger = "manual"
	TriggerDaily      Trigger = "daily"
)

// ErrOffline is returned when a trigger fires while offline.
var ErrOffline = apperrors.New(apperrors.ErrNetwork, "offline")

// Generator creates due recurring instances.
type Generator interface {
	GenerateDueRecurringInstances(ctx context.Context, userID models.UUID) (int, error)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	UserID       models.UUID
	SyncInterval time.Duration  // periodic trigger (default: 30 seconds)
	SyncTimeout  time.Duration  // deadline of one cycle (default: 30 seconds)
	GenerateSpec string         // cron spec of the daily generation job
	Location     *time.Location // cron location (default: time.Local)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SyncInterval: 30 * time.Second,
		SyncTimeout:  30 * time.Second,
		GenerateSpec: "0 5 0 * * *",
		Location:     time.Local,
	}
}

// Scheduler serializes sync cycles and recurring generation. Errors are
// logged and retried on the next trigger.
type Scheduler struct {
	engine    syncpkg.SyncEngineInterface
	generator Generator
	events    syncpkg.SyncEventHandler
	config    SchedulerConfig

	cron *cron.Cron
	wg   sync.WaitGroup

	mu             sync.RWMutex
	baseCtx        context.Context
	isRunning      bool
	isOnline       bool
	syncInProgress bool
	lastSyncTime   time.Time
	lastGenerated  time.Time
}

// NewScheduler creates a new Scheduler. generator and events may be nil.
func NewScheduler(engine syncpkg.SyncEngineInterface, generator Generator, events syncpkg.SyncEventHandler, config *SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaults.SyncInterval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaults.SyncTimeout
	}
	if cfg.GenerateSpec == "" {
		cfg.GenerateSpec = defaults.GenerateSpec
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}

	return &Scheduler{
		engine:    engine,
		generator: generator,
		events:    events,
		config:    cfg,
		baseCtx:   context.Background(),
		isOnline:  true, // Assume online initially
	}
}

// intervalSpec converts an interval into a cron descriptor.
func intervalSpec(interval time.Duration) string {
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("@every %ds", seconds)
}

// Start registers the periodic sync and daily generation jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	c := cron.New(
		cron.WithLocation(s.config.Location),
		cron.WithSeconds(),
		cron.WithLogger(cron.PrintfLogger(logging.Get())),
	)
	if _, err := c.AddFunc(intervalSpec(s.config.SyncInterval), func() {
		s.runSync(ctx, TriggerPeriodic)
	}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule periodic sync: %w", err)
	}
	if _, err := c.AddFunc(s.config.GenerateSpec, func() {
		s.runGenerate(ctx, TriggerDaily)
	}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule recurring generation: %w", err)
	}

	s.cron = c
	s.baseCtx = ctx
	s.isRunning = true
	s.mu.Unlock()

	c.Start()

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval":      s.config.SyncInterval.String(),
		"generate_spec": s.config.GenerateSpec,
	})
	return nil
}

// Stop stops the cron jobs and waits for triggered cycles to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.isRunning = false
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// SetOnlineStatus records connectivity. Going from offline to online
// triggers a cycle.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	ctx := s.baseCtx
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}
	logging.Info("Online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})
	if isOnline {
		s.spawn(func() { s.runSync(ctx, TriggerReconnect) })
	}
}

// NotifyForeground runs a cycle and generation when the app returns to the
// foreground. Generation runs even when the cycle is skipped or fails.
func (s *Scheduler) NotifyForeground() {
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()

	s.spawn(func() {
		if err := s.runSync(ctx, TriggerForeground); err != nil {
			s.runGenerate(ctx, TriggerForeground)
		}
	})
}

// TriggerSync starts a cycle in the background.
// Returns true if a cycle was started, false if one is already running.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.RLock()
	isSyncing := s.syncInProgress
	s.mu.RUnlock()

	if isSyncing {
		return false
	}
	s.spawn(func() { s.runSync(ctx, TriggerManual) })
	return true
}

// SyncNow runs a cycle and waits for it. Unlike the background triggers it
// ignores the online flag and returns the cycle error.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.SyncResult, error) {
	if !s.begin() {
		return nil, syncpkg.ErrSyncInProgress
	}
	defer s.end()

	result, err := s.sync(ctx, TriggerManual)
	if err != nil {
		return result, err
	}
	s.runGenerate(ctx, TriggerManual)
	return result, nil
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncInProgress {
		return false
	}
	s.syncInProgress = true
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.syncInProgress = false
	s.mu.Unlock()
}

// runSync executes one cycle for a background trigger and, after a
// successful cycle, recurring generation.
func (s *Scheduler) runSync(ctx context.Context, trigger Trigger) error {
	if !s.IsOnline() {
		logging.Debug("Skipping sync - scheduler is offline", map[string]interface{}{"trigger": string(trigger)})
		return ErrOffline
	}
	if !s.begin() {
		logging.Debug("Sync already in progress, skipping", map[string]interface{}{"trigger": string(trigger)})
		return syncpkg.ErrSyncInProgress
	}
	defer s.end()

	if _, err := s.sync(ctx, trigger); err != nil {
		return err
	}
	s.runGenerate(ctx, trigger)
	return nil
}

func (s *Scheduler) sync(ctx context.Context, trigger Trigger) (*syncpkg.SyncResult, error) {
	syncCtx, cancel := context.WithTimeout(ctx, s.config.SyncTimeout)
	defer cancel()

	result, err := s.engine.Sync(syncCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			logging.Debug("Engine busy, skipping", map[string]interface{}{"trigger": string(trigger)})
		} else {
			logging.ErrorWithCode("Sync failed", apperrors.CodeOf(err), err,
				map[string]interface{}{"trigger": string(trigger)})
		}
		return result, err
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("Sync completed", map[string]interface{}{
		"trigger":   string(trigger),
		"pushed":    result.Pushed,
		"applied":   result.Applied,
		"conflicts": result.Conflicts,
	})
	return result, nil
}

// runGenerate creates due recurring instances and announces them.
func (s *Scheduler) runGenerate(ctx context.Context, trigger Trigger) {
	if s.generator == nil {
		return
	}
	genCtx, cancel := context.WithTimeout(ctx, s.config.SyncTimeout)
	defer cancel()

	created, err := s.generator.GenerateDueRecurringInstances(genCtx, s.config.UserID)
	if err != nil {
		logging.ErrorWithCode("Recurring generation failed", apperrors.CodeOf(err), err,
			map[string]interface{}{"trigger": string(trigger)})
		return
	}

	s.mu.Lock()
	s.lastGenerated = time.Now()
	s.mu.Unlock()

	if created > 0 && s.events != nil {
		s.events.OnSyncEvent(syncpkg.SyncEvent{
			Type:    syncpkg.SyncEventRecurringGenerated,
			Message: fmt.Sprintf("%d recurring tasks created", created),
			Created: created,
		})
	}
}

// SchedulerStatus is a snapshot of the scheduler state.
type SchedulerStatus struct {
	IsRunning      bool               `json:"isRunning"`
	IsOnline       bool               `json:"isOnline"`
	SyncInProgress bool               `json:"syncInProgress"`
	LastSyncTime   *time.Time         `json:"lastSyncTime,omitempty"`
	LastGenerated  *time.Time         `json:"lastGenerated,omitempty"`
	EngineStatus   syncpkg.SyncStatus `json:"engineStatus"`
	LastError      string             `json:"lastError,omitempty"`
	PendingChanges int                `json:"pendingChanges"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus(ctx context.Context) SchedulerStatus {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning:      s.isRunning,
		IsOnline:       s.isOnline,
		SyncInProgress: s.syncInProgress,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if !s.lastGenerated.IsZero() {
		t := s.lastGenerated
		status.LastGenerated = &t
	}
	s.mu.RUnlock()

	status.EngineStatus = s.engine.Status()
	if err := s.engine.LastError(); err != nil {
		status.LastError = err.Error()
	}
	pending, err := s.engine.PendingChanges(ctx)
	if err != nil {
		logging.Debug("Pending count unavailable", map[string]interface{}{"error": err.Error()})
	}
	status.PendingChanges = pending
	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
