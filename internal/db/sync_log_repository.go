package db

import (
	"context"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// =====================================================
// Change Log Operations (sync_logs)
// =====================================================

// InsertSyncLog appends one change-log entry.
func (r *Repository) InsertSyncLog(ctx context.Context, e *models.ChangeLogEntry) error {
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
	INSERT INTO sync_logs (id, user_id, entity_type, entity_id, action, team_id, timestamp, data_snapshot)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.EntityType), e.EntityID, string(e.Action), e.TeamID, e.Timestamp, e.DataSnapshot)
	return wrapDBError("failed to insert sync log", err)
}

// ListSyncLogsSince returns entries strictly after since that belong to
// userID or to a team userID is a member of, oldest first.
func (r *Repository) ListSyncLogsSince(ctx context.Context, userID models.UUID, since models.Timestamp) ([]*models.ChangeLogEntry, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if since.IsZero() {
		since = models.Epoch
	}
	rows, err := r.q.QueryContext(ctx, `
	SELECT t.id, t.user_id, t.entity_type, t.entity_id, t.action, t.team_id, t.timestamp, t.data_snapshot
	FROM sync_logs t
	WHERE t.timestamp > ? AND `+visibleTo+`
	ORDER BY t.timestamp ASC, t.rowid ASC`, since, userID, userID)
	if err != nil {
		return nil, wrapDBError("failed to list sync logs", err)
	}
	defer rows.Close()

	var entries []*models.ChangeLogEntry
	for rows.Next() {
		var e models.ChangeLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntityType, &e.EntityID, &e.Action, &e.TeamID, &e.Timestamp, &e.DataSnapshot); err != nil {
			return nil, wrapDBError("failed to scan sync log", err)
		}
		entries = append(entries, &e)
	}
	return entries, wrapDBError("failed to list sync logs", rows.Err())
}

// CountSyncLogsSince counts the entries ListSyncLogsSince would return.
func (r *Repository) CountSyncLogsSince(ctx context.Context, userID models.UUID, since models.Timestamp) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	if since.IsZero() {
		since = models.Epoch
	}
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM sync_logs t WHERE t.timestamp > ? AND `+visibleTo,
		since, userID, userID).Scan(&n)
	return n, wrapDBError("failed to count sync logs", err)
}

// DeleteSyncLogsThrough deletes entries at or before cutoff.
func (r *Repository) DeleteSyncLogsThrough(ctx context.Context, cutoff models.Timestamp) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM sync_logs WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return 0, wrapDBError("failed to prune sync logs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteSyncLogsForEntity deletes every entry for one entity.
func (r *Repository) DeleteSyncLogsForEntity(ctx context.Context, entityType models.EntityType, entityID models.UUID) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM sync_logs WHERE entity_type = ? AND entity_id = ?`,
		string(entityType), entityID)
	if err != nil {
		return 0, wrapDBError("failed to delete sync logs for entity", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LatestSyncLogTimestamp returns the newest entry timestamp, zero when empty.
func (r *Repository) LatestSyncLogTimestamp(ctx context.Context) (models.Timestamp, error) {
	if err := r.ready(); err != nil {
		return models.Timestamp{}, err
	}
	var ts models.Timestamp
	err := r.queryRow(ctx, `SELECT MAX(timestamp) FROM sync_logs`).Scan(&ts)
	return ts, wrapDBError("failed to read latest sync log", err)
}
