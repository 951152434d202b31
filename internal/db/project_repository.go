package db

import (
	"context"
	"database/sql"

	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

const projectColumns = `t.id, t.name, t.description, t.color, t.icon, t.category_id, t.team_id,
	t.user_id, t.last_modified_by, t.version, t.created_at, t.updated_at`

const projectInsertColumns = `id, name, description, color, icon, category_id, team_id,
	user_id, last_modified_by, version, created_at, updated_at`

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var description, icon sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &p.Color, &icon, &p.CategoryID, &p.TeamID,
		&p.UserID, &p.LastModifiedBy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Icon = icon.String
	return &p, nil
}

func projectArgs(p *models.Project) []interface{} {
	return []interface{}{p.ID, p.Name, nullString(p.Description), p.Color, nullString(p.Icon), p.CategoryID, p.TeamID,
		p.UserID, p.LastModifiedBy, p.Version, p.CreatedAt, p.UpdatedAt}
}

// =====================================================
// Project Operations
// =====================================================

// GetProject retrieves a project by ID.
func (r *Repository) GetProject(ctx context.Context, id models.UUID) (*models.Project, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	p, err := scanProject(r.queryRow(ctx, `SELECT `+projectColumns+` FROM projects t WHERE t.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, wrapDBError("failed to get project", err)
	}
	return p, nil
}

// ListProjects returns the projects visible to userID ordered by name.
func (r *Repository) ListProjects(ctx context.Context, userID models.UUID) ([]*models.Project, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects t WHERE `+visibleTo+` ORDER BY t.name COLLATE NOCASE, t.id`,
		userID, userID)
	if err != nil {
		return nil, wrapDBError("failed to list projects", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, wrapDBError("failed to scan project", err)
		}
		projects = append(projects, p)
	}
	return projects, wrapDBError("failed to list projects", rows.Err())
}

// CreateProject inserts a new project with a fresh id and version 1.
func (r *Repository) CreateProject(ctx context.Context, p *models.Project) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := r.Now()
	p.ID = models.UUID(uuid.New())
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.LastModifiedBy == "" {
		p.LastModifiedBy = p.UserID
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO projects (` + projectInsertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, projectArgs(p)...); err != nil {
		return wrapDBError("failed to create project", err)
	}
	return nil
}

// UpdateProject merges patch into the stored project and bumps its version.
func (r *Repository) UpdateProject(ctx context.Context, id models.UUID, patch models.ProjectPatch, modifiedBy models.UUID) (*models.Project, error) {
	current, err := r.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	patch.Apply(&next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = r.Now()
	if modifiedBy != "" {
		next.LastModifiedBy = modifiedBy
	}

	res, err := r.q.ExecContext(ctx, `
	UPDATE projects SET name = ?, description = ?, color = ?, icon = ?, category_id = ?, team_id = ?,
		last_modified_by = ?, version = ?, updated_at = ?
	WHERE id = ? AND version = ?`,
		next.Name, nullString(next.Description), next.Color, nullString(next.Icon), next.CategoryID, next.TeamID,
		next.LastModifiedBy, next.Version, next.UpdatedAt, id, current.Version)
	if err != nil {
		return nil, wrapDBError("failed to update project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("project", id)
	}
	return &next, nil
}

// DeleteProject detaches the project's tasks, removes the project and
// returns its last state. Tasks are never deleted with their project.
func (r *Repository) DeleteProject(ctx context.Context, id models.UUID) (*models.Project, error) {
	var deleted *models.Project
	err := r.InTx(ctx, func(tx *Repository) error {
		current, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.RemoveProject(ctx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	return deleted, err
}

// RemoveProject deletes a project if present, detaching its tasks first.
func (r *Repository) RemoveProject(ctx context.Context, id models.UUID) (bool, error) {
	var removed bool
	err := r.InTx(ctx, func(tx *Repository) error {
		if _, err := tx.DetachTasksFromProject(ctx, id); err != nil {
			return err
		}
		res, err := tx.q.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
		if err != nil {
			return wrapDBError("failed to delete project", err)
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	return removed, err
}

// UpsertProject stores a remote snapshot unless the stored version is at or beyond it.
func (r *Repository) UpsertProject(ctx context.Context, p *models.Project) (bool, error) {
	return r.upsertProject(ctx, p, false)
}

// ForceUpsertProject stores a remote snapshot regardless of the stored version.
func (r *Repository) ForceUpsertProject(ctx context.Context, p *models.Project) (bool, error) {
	return r.upsertProject(ctx, p, true)
}

func (r *Repository) upsertProject(ctx context.Context, p *models.Project, force bool) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	p.ApplyDefaults()
	if p.Version < 1 {
		p.Version = 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	query := `INSERT INTO projects (` + projectInsertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, description = excluded.description, color = excluded.color,
		icon = excluded.icon, category_id = excluded.category_id, team_id = excluded.team_id,
		user_id = excluded.user_id, last_modified_by = excluded.last_modified_by,
		version = excluded.version, created_at = excluded.created_at, updated_at = excluded.updated_at`
	if !force {
		query += `
	WHERE excluded.version > projects.version`
	}
	res, err := r.q.ExecContext(ctx, query, projectArgs(p)...)
	if err != nil {
		return false, wrapDBError("failed to upsert project", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
