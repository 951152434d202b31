package db

import (
	"context"
	"database/sql"

	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

const taskColumns = `t.id, t.title, t.description, t.notes, t.priority, t.status, t.due_date,
	t.category_id, t.project_id, t.team_id, t.progress_percentage, t.user_id, t.last_modified_by,
	t.version, t.is_recurring, t.recurrence_pattern, t.parent_task_id, t.attachments,
	t.created_at, t.updated_at, t.completed_at`

const taskInsertColumns = `id, title, description, notes, priority, status, due_date,
	category_id, project_id, team_id, progress_percentage, user_id, last_modified_by,
	version, is_recurring, recurrence_pattern, parent_task_id, attachments,
	created_at, updated_at, completed_at`

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var description, notes, pattern sql.NullString
	err := row.Scan(
		&t.ID, &t.Title, &description, &notes, &t.Priority, &t.Status, &t.DueDate,
		&t.CategoryID, &t.ProjectID, &t.TeamID, &t.ProgressPercentage, &t.UserID, &t.LastModifiedBy,
		&t.Version, &t.IsRecurring, &pattern, &t.ParentTaskID, &t.Attachments,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Notes = notes.String
	t.RecurrencePattern = models.RecurrencePattern(pattern.String)
	return &t, nil
}

func taskArgs(t *models.Task) []interface{} {
	return []interface{}{
		t.ID, t.Title, nullString(t.Description), nullString(t.Notes), string(t.Priority), string(t.Status), t.DueDate,
		t.CategoryID, t.ProjectID, t.TeamID, t.ProgressPercentage, t.UserID, t.LastModifiedBy,
		t.Version, t.IsRecurring, nullString(string(t.RecurrencePattern)), t.ParentTaskID, t.Attachments,
		t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	}
}

// =====================================================
// Task Operations
// =====================================================

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id models.UUID) (*models.Task, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.id = ?`
	t, err := scanTask(r.queryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, wrapDBError("failed to get task", err)
	}
	return t, nil
}

// ListTasks returns the tasks visible to userID (owned or shared through a
// team) matching filter, ordered by due date.
func (r *Repository) ListTasks(ctx context.Context, userID models.UUID, filter *TaskFilter) ([]*models.Task, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE ` + visibleTo
	args := []interface{}{userID, userID}
	if where, filterArgs := filter.Builder().Build(); where != "" {
		query += " AND " + where
		args = append(args, filterArgs...)
	}
	query += " ORDER BY t.due_date ASC, t.created_at ASC, t.id ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("failed to list tasks", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("failed to scan task", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, wrapDBError("failed to list tasks", rows.Err())
}

// CreateTask inserts a new task. ID, version and timestamps are assigned
// here; the caller sets the owner.
func (r *Repository) CreateTask(ctx context.Context, t *models.Task) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := r.Now()
	t.ID = models.UUID(uuid.New())
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now
	t.CompletedAt = models.Timestamp{}
	if t.LastModifiedBy == "" {
		t.LastModifiedBy = t.UserID
	}
	t.ApplyDefaults()
	t.ReconcileStatus("", now)
	if err := t.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO tasks (` + taskInsertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, taskArgs(t)...); err != nil {
		return wrapDBError("failed to create task", err)
	}
	return nil
}

// UpdateTask merges patch into the stored task, bumps the version by exactly
// one and returns the new state.
func (r *Repository) UpdateTask(ctx context.Context, id models.UUID, patch models.TaskPatch, modifiedBy models.UUID) (*models.Task, error) {
	current, err := r.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	patch.Apply(next)
	now := r.Now()
	next.ReconcileStatus(current.Status, now)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if modifiedBy != "" {
		next.LastModifiedBy = modifiedBy
	}

	query := `
	UPDATE tasks SET title = ?, description = ?, notes = ?, priority = ?, status = ?, due_date = ?,
		category_id = ?, project_id = ?, team_id = ?, progress_percentage = ?, last_modified_by = ?,
		version = ?, is_recurring = ?, recurrence_pattern = ?, attachments = ?, updated_at = ?, completed_at = ?
	WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, query,
		next.Title, nullString(next.Description), nullString(next.Notes), string(next.Priority), string(next.Status), next.DueDate,
		next.CategoryID, next.ProjectID, next.TeamID, next.ProgressPercentage, next.LastModifiedBy,
		next.Version, next.IsRecurring, nullString(string(next.RecurrencePattern)), next.Attachments, next.UpdatedAt, next.CompletedAt,
		id, current.Version,
	)
	if err != nil {
		return nil, wrapDBError("failed to update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("task", id)
	}
	return next, nil
}

// DeleteTask removes a task and returns its last state.
func (r *Repository) DeleteTask(ctx context.Context, id models.UUID) (*models.Task, error) {
	current, err := r.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.RemoveTask(ctx, id); err != nil {
		return nil, err
	}
	return current, nil
}

// FindInstance returns the instance of series parentID due on due.
func (r *Repository) FindInstance(ctx context.Context, parentID models.UUID, due models.Date) (*models.Task, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.parent_task_id = ? AND t.due_date = ?`
	t, err := scanTask(r.queryRow(ctx, query, parentID, due))
	if err == sql.ErrNoRows {
		return nil, notFound("instance of series", parentID)
	}
	if err != nil {
		return nil, wrapDBError("failed to find recurring instance", err)
	}
	return t, nil
}

// RemoveTask deletes a task if present. Used when applying remote deletes.
func (r *Repository) RemoveTask(ctx context.Context, id models.UUID) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	res, err := r.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, wrapDBError("failed to delete task", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpsertTask stores a remote snapshot verbatim unless the stored version is
// already at or beyond it. Reports whether the row was written.
func (r *Repository) UpsertTask(ctx context.Context, t *models.Task) (bool, error) {
	return r.upsertTask(ctx, t, false)
}

// ForceUpsertTask stores a remote snapshot regardless of the stored version.
// Conflict resolution uses it to install the server's authoritative state.
func (r *Repository) ForceUpsertTask(ctx context.Context, t *models.Task) (bool, error) {
	return r.upsertTask(ctx, t, true)
}

func (r *Repository) upsertTask(ctx context.Context, t *models.Task, force bool) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	normalizeRemoteTask(t, r.Now())

	query := `INSERT INTO tasks (` + taskInsertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title, description = excluded.description, notes = excluded.notes,
		priority = excluded.priority, status = excluded.status, due_date = excluded.due_date,
		category_id = excluded.category_id, project_id = excluded.project_id, team_id = excluded.team_id,
		progress_percentage = excluded.progress_percentage, user_id = excluded.user_id,
		last_modified_by = excluded.last_modified_by, version = excluded.version,
		is_recurring = excluded.is_recurring, recurrence_pattern = excluded.recurrence_pattern,
		parent_task_id = excluded.parent_task_id, attachments = excluded.attachments,
		created_at = excluded.created_at, updated_at = excluded.updated_at, completed_at = excluded.completed_at`
	if !force {
		query += `
	WHERE excluded.version > tasks.version`
	}

	res, err := r.q.ExecContext(ctx, query, taskArgs(t)...)
	if err != nil {
		return false, wrapDBError("failed to upsert task", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// normalizeRemoteTask fills fields that older clients may omit so that the
// row satisfies the table constraints.
func normalizeRemoteTask(t *models.Task, now models.Timestamp) {
	t.ApplyDefaults()
	if t.Version < 1 {
		t.Version = 1
	}
	if t.ProgressPercentage < 0 {
		t.ProgressPercentage = 0
	} else if t.ProgressPercentage > 100 {
		t.ProgressPercentage = 100
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// DetachTasksFromProject clears project_id on every task referencing it.
func (r *Repository) DetachTasksFromProject(ctx context.Context, projectID models.UUID) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, "UPDATE tasks SET project_id = NULL WHERE project_id = ?", projectID)
	if err != nil {
		return 0, wrapDBError("failed to detach tasks from project", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
