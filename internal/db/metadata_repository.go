package db

import (
	"context"
	"database/sql"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// Well-known sync_metadata keys.
const (
	// MetaLastSyncAt is the server cursor returned by the last applied response.
	MetaLastSyncAt = "last_sync_at"
	// MetaLastPushedAt is the timestamp of the newest local change the server
	// has acknowledged. It is on the device clock.
	MetaLastPushedAt = "last_pushed_at"
	// MetaAuthToken holds the encrypted bearer token.
	MetaAuthToken = "auth_token"
	// MetaDeviceID identifies this install when config does not.
	MetaDeviceID = "device_id"
)

// =====================================================
// Sync Metadata Operations
// =====================================================

// GetMetadata returns the value stored under key and whether it exists.
func (r *Repository) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	if err := r.ready(); err != nil {
		return "", false, err
	}
	var value string
	err := r.queryRow(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapDBError("failed to read sync metadata", err)
	}
	return value, true, nil
}

// SetMetadata stores value under key.
func (r *Repository) SetMetadata(ctx context.Context, key, value string) error {
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.Now())
	return wrapDBError("failed to write sync metadata", err)
}

// AdvanceTimestamp stores ts under key only if it is later than the stored
// value. The comparison happens in SQL, so the value can never move back.
// Reports whether the stored value changed.
func (r *Repository) AdvanceTimestamp(ctx context.Context, key string, ts models.Timestamp) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	res, err := r.q.ExecContext(ctx, `
	INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	WHERE excluded.value > sync_metadata.value`,
		key, ts.String(), r.Now())
	if err != nil {
		return false, wrapDBError("failed to advance sync metadata", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetTimestamp reads a timestamp stored under key, Epoch when absent.
func (r *Repository) GetTimestamp(ctx context.Context, key string) (models.Timestamp, error) {
	value, ok, err := r.GetMetadata(ctx, key)
	if err != nil || !ok || value == "" {
		return models.Epoch, err
	}
	ts, err := models.ParseTimestamp(value)
	if err != nil {
		return models.Epoch, wrapDBError("corrupt sync metadata "+key, err)
	}
	return ts, nil
}

// LastSyncAt returns the persisted sync cursor, Epoch before the first sync.
func (r *Repository) LastSyncAt(ctx context.Context) (models.Timestamp, error) {
	return r.GetTimestamp(ctx, MetaLastSyncAt)
}

// =====================================================
// Conflict Log Operations
// =====================================================

// CreateConflictLog records a lost local change.
func (r *Repository) CreateConflictLog(ctx context.Context, c *models.ConflictLog) error {
	if err := r.ready(); err != nil {
		return err
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = r.Now()
	}
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO conflict_log (id, entity_type, entity_id, local_action, local_version, server_version, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.EntityType), c.EntityID, nullString(string(c.LocalAction)), c.LocalVersion, c.ServerVersion,
		c.Resolution, c.DetectedAt)
	return wrapDBError("failed to create conflict log", err)
}

// ListConflictLogs returns the most recent conflict records first.
func (r *Repository) ListConflictLogs(ctx context.Context, limit int) ([]*models.ConflictLog, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `
	SELECT id, entity_type, entity_id, local_action, local_version, server_version, resolution, detected_at
	FROM conflict_log ORDER BY detected_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapDBError("failed to list conflict logs", err)
	}
	defer rows.Close()

	var logs []*models.ConflictLog
	for rows.Next() {
		var c models.ConflictLog
		var action sql.NullString
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &action, &c.LocalVersion, &c.ServerVersion,
			&c.Resolution, &c.DetectedAt); err != nil {
			return nil, wrapDBError("failed to scan conflict log", err)
		}
		c.LocalAction = models.ChangeAction(action.String)
		logs = append(logs, &c)
	}
	return logs, wrapDBError("failed to list conflict logs", rows.Err())
}
