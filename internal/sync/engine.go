// Package sync provides the delta synchronization client.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/changelog"
	"github.com/kimhsiao/taskin/backend/internal/sync/conflict"
	"github.com/kimhsiao/taskin/backend/internal/sync/protocol"
)

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// maxErrorHistory caps the number of retained sync errors.
const maxErrorHistory = 100

// ErrSyncInProgress is returned when a cycle is already running.
var ErrSyncInProgress = apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")

// SyncErrorEntry is one recorded sync failure.
type SyncErrorEntry struct {
	EntityID  string    `json:"entityId,omitempty"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncResult represents the result of a sync cycle.
type SyncResult struct {
	StartTime time.Time        `json:"startTime"`
	EndTime   time.Time        `json:"endTime"`
	Duration  time.Duration    `json:"duration"`
	Pushed    int              `json:"pushed"`
	Received  int              `json:"received"`
	Applied   int              `json:"applied"`
	Skipped   int              `json:"skipped"`
	Conflicts int              `json:"conflicts"`
	Requeued  int              `json:"requeued"`
	Pruned    int64            `json:"pruned"`
	Cursor    models.Timestamp `json:"cursor,omitzero"`
	Error     string           `json:"error,omitempty"`
}

// EngineConfig configures a SyncEngine.
type EngineConfig struct {
	// UserID is the signed-in user whose changes are pushed.
	UserID models.UUID
	// Strategy settles conflicts. Defaults to server_wins.
	Strategy conflict.ResolutionStrategy
	// SafetyWindow is kept behind the cursor when pruning. Defaults to
	// changelog.DefaultSafetyWindow.
	SafetyWindow time.Duration
}

// SyncEngine runs delta sync cycles against a Transport.
type SyncEngine struct {
	repo      *db.Repository
	log       *changelog.Log
	transport Transport
	resolver  *conflict.Resolver
	config    EngineConfig

	running atomic.Bool

	mu           gosync.RWMutex
	status       SyncStatus
	lastSync     *time.Time
	lastErr      error
	lastResult   *SyncResult
	errorHistory []SyncErrorEntry
	handler      SyncEventHandler
}

// NewSyncEngine creates a new SyncEngine.
func NewSyncEngine(repo *db.Repository, log *changelog.Log, transport Transport, config EngineConfig) *SyncEngine {
	if config.SafetyWindow <= 0 {
		config.SafetyWindow = changelog.DefaultSafetyWindow
	}
	if config.Strategy == "" {
		config.Strategy = conflict.ResolutionStrategyServerWins
	}
	return &SyncEngine{
		repo:         repo,
		log:          log,
		transport:    transport,
		resolver:     conflict.NewResolver(config.Strategy, log),
		config:       config,
		status:       SyncStatusIdle,
		errorHistory: make([]SyncErrorEntry, 0),
	}
}

// SetEventHandler sets the handler notified of cycle events. nil disables
// notifications.
func (e *SyncEngine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// Status returns the current sync status.
func (e *SyncEngine) Status() SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastSync returns the time of the last successful cycle.
func (e *SyncEngine) LastSync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSync == nil {
		return nil
	}
	t := *e.lastSync
	return &t
}

// LastError returns the error of the last cycle, nil after a success.
func (e *SyncEngine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// LastResult returns the result of the last cycle.
func (e *SyncEngine) LastResult() *SyncResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastResult == nil {
		return nil
	}
	r := *e.lastResult
	return &r
}

// IsSyncing reports whether a cycle is running.
func (e *SyncEngine) IsSyncing() bool {
	return e.running.Load()
}

// UserID returns the user the engine syncs for.
func (e *SyncEngine) UserID() models.UUID {
	return e.config.UserID
}

// PendingChanges returns the number of local changes not yet acknowledged by
// the server.
func (e *SyncEngine) PendingChanges(ctx context.Context) (int, error) {
	if e.repo == nil || e.log == nil {
		return 0, apperrors.New(apperrors.ErrNotInitialized, "sync engine not initialized")
	}
	pushed, err := e.repo.GetTimestamp(ctx, db.MetaLastPushedAt)
	if err != nil {
		return 0, err
	}
	return e.log.PendingCount(ctx, e.config.UserID, pushed)
}

// GetErrorHistory returns a copy of the recorded sync errors, oldest first.
func (e *SyncEngine) GetErrorHistory() []SyncErrorEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]SyncErrorEntry, len(e.errorHistory))
	copy(out, e.errorHistory)
	return out
}

// ClearErrorHistory drops the recorded sync errors.
func (e *SyncEngine) ClearErrorHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHistory = make([]SyncErrorEntry, 0)
}

func (e *SyncEngine) recordError(entityID, operation string, err error) {
	entry := SyncErrorEntry{
		EntityID:  entityID,
		Operation: operation,
		Error:     err.Error(),
		Code:      string(apperrors.CodeOf(err)),
		Timestamp: time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHistory = append(e.errorHistory, entry)
	if len(e.errorHistory) > maxErrorHistory {
		e.errorHistory = e.errorHistory[len(e.errorHistory)-maxErrorHistory:]
	}
}

func (e *SyncEngine) emitEvent(event SyncEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()
	if handler != nil {
		handler.OnSyncEvent(event)
	}
}

// Sync runs one delta cycle: push pending changes, apply the server's delta,
// settle conflicts and advance the cursor in one transaction, then prune the
// change log. A concurrent call returns ErrSyncInProgress without doing work.
func (e *SyncEngine) Sync(ctx context.Context) (*SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	if e.repo == nil || e.log == nil || e.transport == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "sync engine not initialized")
	}

	e.mu.Lock()
	e.status = SyncStatusSyncing
	e.mu.Unlock()
	e.emitEvent(SyncEvent{Type: SyncEventStarted, Message: "sync started"})

	result := &SyncResult{StartTime: time.Now()}
	err := e.runCycle(ctx, result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if err != nil {
		result.Error = err.Error()
		e.recordError("", "sync", err)

		e.mu.Lock()
		e.status = SyncStatusFailed
		e.lastErr = err
		e.lastResult = result
		e.mu.Unlock()

		logging.ErrorWithCode("Sync cycle failed", apperrors.CodeOf(err), err, map[string]interface{}{
			"user_id": string(e.config.UserID),
			"pushed":  result.Pushed,
		})
		e.emitEvent(SyncEvent{
			Type:    SyncEventFailed,
			Message: err.Error(),
			Code:    string(apperrors.CodeOf(err)),
		})
		return result, err
	}

	e.mu.Lock()
	e.status = SyncStatusIdle
	e.lastErr = nil
	end := result.EndTime
	e.lastSync = &end
	e.lastResult = result
	e.mu.Unlock()

	logging.Info("Sync cycle completed", map[string]interface{}{
		"user_id":   string(e.config.UserID),
		"pushed":    result.Pushed,
		"received":  result.Received,
		"applied":   result.Applied,
		"conflicts": result.Conflicts,
		"cursor":    result.Cursor.String(),
		"duration":  result.Duration.String(),
	})
	e.emitEvent(SyncEvent{
		Type:      SyncEventCompleted,
		Message:   "sync completed",
		Cursor:    result.Cursor,
		Pushed:    result.Pushed,
		Applied:   result.Applied,
		Conflicts: result.Conflicts,
	})
	return result, nil
}

func (e *SyncEngine) runCycle(ctx context.Context, result *SyncResult) error {
	cursor, err := e.repo.LastSyncAt(ctx)
	if err != nil {
		return err
	}
	pushedMark, err := e.repo.GetTimestamp(ctx, db.MetaLastPushedAt)
	if err != nil {
		return err
	}

	// Pending entries are selected by the device-clock mark, never by the
	// server cursor.
	entries, err := e.log.CollectSince(ctx, e.config.UserID, pushedMark)
	if err != nil {
		return err
	}
	batch := changelog.Latest(entries)

	req := &protocol.DeltaRequest{Changes: make([]protocol.Change, 0, len(batch))}
	for _, entry := range batch {
		req.Changes = append(req.Changes, protocol.FromEntry(entry))
	}
	if cursor.After(models.Epoch) {
		req.LastSyncAt = cursor
	}
	result.Pushed = len(req.Changes)

	resp, err := e.transport.Delta(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return apperrors.New(apperrors.ErrServerRejected, "empty delta response")
	}
	result.Received = len(resp.Changes)
	result.Conflicts = len(resp.Conflicts)

	var newPushed models.Timestamp
	if len(entries) > 0 {
		newPushed = entries[len(entries)-1].Timestamp
	}

	err = e.repo.InTx(ctx, func(tx *db.Repository) error {
		if err := e.applyDelta(ctx, tx, pushedMark, batch, resp, result); err != nil {
			return err
		}
		if !resp.LastSyncAt.IsZero() {
			if _, err := tx.AdvanceTimestamp(ctx, db.MetaLastSyncAt, resp.LastSyncAt); err != nil {
				return err
			}
		}
		if !newPushed.IsZero() {
			if _, err := tx.AdvanceTimestamp(ctx, db.MetaLastPushedAt, newPushed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	newCursor, err := e.repo.LastSyncAt(ctx)
	if err != nil {
		return err
	}
	result.Cursor = newCursor
	mark, err := e.repo.GetTimestamp(ctx, db.MetaLastPushedAt)
	if err != nil {
		return err
	}

	pruned, err := e.log.PruneBefore(ctx, changelog.PruneCutoff(newCursor, mark, e.config.SafetyWindow))
	if err != nil {
		logging.Warn("Change log prune failed", map[string]interface{}{"error": err.Error()})
	}
	result.Pruned = pruned
	return nil
}

// applyDelta applies the server changes and settles conflicts inside tx.
func (e *SyncEngine) applyDelta(ctx context.Context, tx *db.Repository, pushedMark models.Timestamp, batch []*models.ChangeLogEntry, resp *protocol.DeltaResponse, result *SyncResult) error {
	pending, err := tx.ListSyncLogsSince(ctx, e.config.UserID, pushedMark)
	if err != nil {
		return err
	}
	pendingDeletes := make(map[models.EntityKey]bool)
	for _, entry := range changelog.Latest(pending) {
		if entry.Action == models.ActionDelete {
			pendingDeletes[entry.Key()] = true
		}
	}

	local := make(map[models.EntityKey]*models.ChangeLogEntry, len(batch))
	for _, entry := range batch {
		local[entry.Key()] = entry
	}

	conflicted := make(map[models.EntityKey]bool, len(resp.Conflicts))
	for i := range resp.Conflicts {
		conflicted[resp.Conflicts[i].Key()] = true
	}

	authoritative := make(map[models.EntityKey]*protocol.Change)
	for i := range resp.Changes {
		ch := &resp.Changes[i]
		key := ch.Key()
		if !conflicted[key] {
			continue
		}
		if cur, ok := authoritative[key]; !ok || ch.Version >= cur.Version {
			authoritative[key] = ch
		}
	}

	for i := range resp.Changes {
		ch := &resp.Changes[i]
		if err := ch.Validate(); err != nil {
			logging.Warn("Skipping invalid server change", map[string]interface{}{
				"entity_type": string(ch.EntityType),
				"entity_id":   string(ch.EntityID),
				"error":       err.Error(),
			})
			result.Skipped++
			continue
		}
		key := ch.Key()
		if conflicted[key] {
			continue
		}
		if ch.Action != models.ActionDelete && pendingDeletes[key] {
			logging.Debug("Skipping server change for locally deleted entity", map[string]interface{}{
				"entity_type": string(ch.EntityType),
				"entity_id":   string(ch.EntityID),
			})
			result.Skipped++
			continue
		}

		if ch.EntityType == models.EntityTask && ch.Action != models.ActionDelete {
			lost, err := e.settleInstance(ctx, tx, ch)
			if err != nil {
				return err
			}
			if lost {
				result.Skipped++
				continue
			}
		}

		applied, err := ch.Apply(ctx, tx, false)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrDatabase) {
				return err
			}
			e.recordError(string(ch.EntityID), "apply", err)
			logging.Warn("Skipping server change", map[string]interface{}{
				"entity_type": string(ch.EntityType),
				"entity_id":   string(ch.EntityID),
				"action":      string(ch.Action),
				"error":       err.Error(),
			})
			result.Skipped++
			continue
		}
		if applied {
			result.Applied++
		}
	}

	for i := range resp.Conflicts {
		pc := &resp.Conflicts[i]
		c := &conflict.Conflict{
			EntityType:    pc.EntityType,
			EntityID:      pc.EntityID,
			UserID:        e.config.UserID,
			LocalVersion:  pc.LocalVersion,
			ServerVersion: pc.ServerVersion,
			Authoritative: authoritative[pc.Key()],
		}
		if entry, ok := local[pc.Key()]; ok {
			c.LocalAction = entry.Action
			if v := entry.Version(); v > 0 {
				c.LocalVersion = v
			}
		}
		if c.Authoritative == nil && pc.ServerData != "" {
			c.Authoritative = &protocol.Change{
				EntityType: pc.EntityType,
				EntityID:   pc.EntityID,
				Action:     models.ActionUpdate,
				Data:       pc.ServerData,
				Version:    pc.ServerVersion,
			}
		}

		res, err := e.resolver.Resolve(ctx, tx, c)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrDatabase) {
				return err
			}
			e.recordError(string(pc.EntityID), "resolve", err)
			logging.Warn("Conflict not resolved", map[string]interface{}{
				"entity_type": string(pc.EntityType),
				"entity_id":   string(pc.EntityID),
				"error":       err.Error(),
			})
			continue
		}
		if res.Err != nil {
			e.recordError(string(pc.EntityID), "resolve", res.Err)
			result.Skipped++
		}
		if res.Applied {
			result.Applied++
		}
		if res.Requeued {
			result.Requeued++
		}
	}
	return nil
}

// settleInstance handles two devices generating the same recurring instance
// under different ids. The lower id is kept on every device: a losing local
// row is removed and its delete queued, a losing remote row is not applied.
// Reports whether ch lost.
func (e *SyncEngine) settleInstance(ctx context.Context, tx *db.Repository, ch *protocol.Change) (bool, error) {
	incoming, err := models.DecodeTask(string(ch.Data))
	if err != nil || incoming.ParentTaskID == "" || incoming.DueDate.IsZero() {
		return false, nil
	}
	if incoming.ID == "" {
		incoming.ID = ch.EntityID
	}

	existing, err := tx.FindInstance(ctx, incoming.ParentTaskID, incoming.DueDate)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if existing.ID == incoming.ID {
		return false, nil
	}

	fields := map[string]interface{}{
		"series_id": string(incoming.ParentTaskID),
		"due_date":  incoming.DueDate.String(),
		"local_id":  string(existing.ID),
		"remote_id": string(incoming.ID),
	}
	if existing.ID < incoming.ID {
		logging.Info("Duplicate recurring instance ignored", fields)
		return true, nil
	}

	tomb := models.Tombstone{ID: existing.ID, UserID: existing.UserID, TeamID: existing.TeamID, Version: existing.Version}
	if _, err := e.log.With(tx).Append(ctx, e.config.UserID, models.EntityTask, existing.ID, models.ActionDelete, tomb); err != nil {
		return false, err
	}
	if _, err := tx.RemoveTask(ctx, existing.ID); err != nil {
		return false, err
	}
	logging.Info("Duplicate recurring instance replaced", fields)
	return false, nil
}

// RefreshTeams replaces the local team memberships with the server's.
func (e *SyncEngine) RefreshTeams(ctx context.Context) (int, error) {
	if e.repo == nil || e.transport == nil {
		return 0, apperrors.New(apperrors.ErrNotInitialized, "sync engine not initialized")
	}
	resp, err := e.transport.Teams(ctx)
	if err != nil {
		return 0, err
	}
	if err := e.repo.ReplaceTeams(ctx, e.config.UserID, resp.Teams); err != nil {
		return 0, fmt.Errorf("replace teams: %w", err)
	}
	return len(resp.Teams), nil
}
