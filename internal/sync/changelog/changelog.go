// Package changelog is the append-only record of local mutations that the
// sync client pushes to the server.
package changelog

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

// DefaultSafetyWindow is how far behind the cursor entries are kept when
// pruning, so that a change acknowledged just before a crash is not lost.
const DefaultSafetyWindow = time.Hour

// Clock hands out strictly increasing timestamps, so entries written within
// the same microsecond still sort in write order.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last models.Timestamp
}

// NewClock creates a Clock reading from now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns a timestamp later than every timestamp handed out before.
func (c *Clock) Next() models.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := models.NewTimestamp(c.now())
	if !ts.After(c.last) {
		ts = c.last.Add(time.Microsecond)
	}
	c.last = ts
	return ts
}

// Observe makes later calls to Next return values after ts.
func (c *Clock) Observe(ts models.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts.After(c.last) {
		c.last = ts
	}
}

// Log appends, collects and prunes change-log entries.
type Log struct {
	store db.ChangeLogRepository
	clock *Clock
}

// New creates a Log over store.
func New(store db.ChangeLogRepository, clock *Clock) *Log {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &Log{store: store, clock: clock}
}

// With returns a Log sharing the clock but writing through store, typically
// a transaction-bound repository.
func (l *Log) With(store db.ChangeLogRepository) *Log {
	return &Log{store: store, clock: l.clock}
}

// Clock returns the log's timestamp source.
func (l *Log) Clock() *Clock {
	return l.clock
}

// Seed advances the clock past the newest stored entry. Call once after
// opening the store, since the device clock may have moved backwards.
func (l *Log) Seed(ctx context.Context) error {
	latest, err := l.store.LatestSyncLogTimestamp(ctx)
	if err != nil {
		return err
	}
	l.clock.Observe(latest)
	return nil
}

// Append records one mutation. snapshot is the entity after the write, or a
// tombstone for deletes; a string is stored verbatim. The team id is read
// from the snapshot.
func (l *Log) Append(ctx context.Context, userID models.UUID, entityType models.EntityType, entityID models.UUID, action models.ChangeAction, snapshot interface{}) (*models.ChangeLogEntry, error) {
	if !entityType.Valid() {
		return nil, apperrors.Newf(apperrors.ErrValidation, "unknown entity type %q", entityType)
	}
	if !action.Valid() {
		return nil, apperrors.Newf(apperrors.ErrValidation, "unknown action %q", action)
	}

	data, ok := snapshot.(string)
	if !ok {
		var err error
		if data, err = models.EncodeSnapshot(snapshot); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode snapshot", err)
		}
	}
	meta, err := models.DecodeSnapshotMeta(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "snapshot is not a JSON object", err)
	}

	entry := &models.ChangeLogEntry{
		ID:           models.UUID(uuid.New()),
		UserID:       userID,
		EntityType:   entityType,
		EntityID:     entityID,
		Action:       action,
		TeamID:       meta.TeamID,
		Timestamp:    l.clock.Next(),
		DataSnapshot: data,
	}
	if err := l.store.InsertSyncLog(ctx, entry); err != nil {
		return nil, err
	}

	logging.Debug("Change recorded", map[string]interface{}{
		"entity_type": string(entityType),
		"entity_id":   string(entityID),
		"action":      string(action),
	})
	return entry, nil
}

// CollectSince returns entries strictly after since owned by userID or by one
// of their teams, oldest first.
func (l *Log) CollectSince(ctx context.Context, userID models.UUID, since models.Timestamp) ([]*models.ChangeLogEntry, error) {
	return l.store.ListSyncLogsSince(ctx, userID, since)
}

// PendingCount counts the entries CollectSince would return.
func (l *Log) PendingCount(ctx context.Context, userID models.UUID, since models.Timestamp) (int, error) {
	return l.store.CountSyncLogsSince(ctx, userID, since)
}

// PruneBefore deletes entries at or before cutoff.
func (l *Log) PruneBefore(ctx context.Context, cutoff models.Timestamp) (int64, error) {
	if cutoff.IsZero() || !cutoff.After(models.Epoch) {
		return 0, nil
	}
	n, err := l.store.DeleteSyncLogsThrough(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Debug("Change log pruned", map[string]interface{}{
			"cutoff":  cutoff.String(),
			"removed": n,
		})
	}
	return n, nil
}

// RemoveEntity deletes every entry for one entity.
func (l *Log) RemoveEntity(ctx context.Context, entityType models.EntityType, entityID models.UUID) (int64, error) {
	return l.store.DeleteSyncLogsForEntity(ctx, entityType, entityID)
}

// PruneCutoff is the prune boundary for a cycle: the older of the server
// cursor and the pushed mark, minus window.
func PruneCutoff(cursor, pushed models.Timestamp, window time.Duration) models.Timestamp {
	base := cursor
	if pushed.Before(base) {
		base = pushed
	}
	if base.IsZero() {
		return models.Timestamp{}
	}
	return base.Add(-window)
}

// Latest keeps the newest entry per entity. The result is ordered by the
// position of each kept entry in entries.
func Latest(entries []*models.ChangeLogEntry) []*models.ChangeLogEntry {
	last := make(map[models.EntityKey]int, len(entries))
	for i, e := range entries {
		last[e.Key()] = i
	}
	out := make([]*models.ChangeLogEntry, 0, len(last))
	for i, e := range entries {
		if last[e.Key()] == i {
			out = append(out, e)
		}
	}
	return out
}
