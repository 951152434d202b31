package db

import (
	"context"
	"database/sql"

	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

const categoryColumns = `t.id, t.name, t.color, t.icon, t.description, t.team_id, t.user_id,
	t.last_modified_by, t.version, t.created_at, t.updated_at`

const categoryInsertColumns = `id, name, color, icon, description, team_id, user_id,
	last_modified_by, version, created_at, updated_at`

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	var icon, description sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Color, &icon, &description, &c.TeamID, &c.UserID,
		&c.LastModifiedBy, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Icon = icon.String
	c.Description = description.String
	return &c, nil
}

func categoryArgs(c *models.Category) []interface{} {
	return []interface{}{c.ID, c.Name, c.Color, nullString(c.Icon), nullString(c.Description), c.TeamID, c.UserID,
		c.LastModifiedBy, c.Version, c.CreatedAt, c.UpdatedAt}
}

// =====================================================
// Category Operations
// =====================================================

// GetCategory retrieves a category by ID.
func (r *Repository) GetCategory(ctx context.Context, id models.UUID) (*models.Category, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	c, err := scanCategory(r.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories t WHERE t.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("category", id)
	}
	if err != nil {
		return nil, wrapDBError("failed to get category", err)
	}
	return c, nil
}

// ListCategories returns the categories visible to userID ordered by name.
func (r *Repository) ListCategories(ctx context.Context, userID models.UUID) ([]*models.Category, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories t WHERE `+visibleTo+` ORDER BY t.name COLLATE NOCASE, t.id`,
		userID, userID)
	if err != nil {
		return nil, wrapDBError("failed to list categories", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapDBError("failed to scan category", err)
		}
		categories = append(categories, c)
	}
	return categories, wrapDBError("failed to list categories", rows.Err())
}

// CreateCategory inserts a new category. A preset ID is kept, which lets
// default categories use derived ids.
func (r *Repository) CreateCategory(ctx context.Context, c *models.Category) error {
	if err := r.ready(); err != nil {
		return err
	}
	now := r.Now()
	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	}
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.LastModifiedBy == "" {
		c.LastModifiedBy = c.UserID
	}
	if err := c.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO categories (` + categoryInsertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, categoryArgs(c)...); err != nil {
		return wrapDBError("failed to create category", err)
	}
	return nil
}

// UpdateCategory merges patch into the stored category and bumps its version.
func (r *Repository) UpdateCategory(ctx context.Context, id models.UUID, patch models.CategoryPatch, modifiedBy models.UUID) (*models.Category, error) {
	current, err := r.GetCategory(ctx, id)
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
	UPDATE categories SET name = ?, color = ?, icon = ?, description = ?, last_modified_by = ?,
		version = ?, updated_at = ?
	WHERE id = ? AND version = ?`,
		next.Name, next.Color, nullString(next.Icon), nullString(next.Description), next.LastModifiedBy,
		next.Version, next.UpdatedAt, id, current.Version)
	if err != nil {
		return nil, wrapDBError("failed to update category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("category", id)
	}
	return &next, nil
}

// DeleteCategory removes a category and returns its last state.
func (r *Repository) DeleteCategory(ctx context.Context, id models.UUID) (*models.Category, error) {
	current, err := r.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.RemoveCategory(ctx, id); err != nil {
		return nil, err
	}
	return current, nil
}

// RemoveCategory deletes a category if present.
func (r *Repository) RemoveCategory(ctx context.Context, id models.UUID) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	res, err := r.q.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return false, wrapDBError("failed to delete category", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpsertCategory stores a remote snapshot unless the stored version is at or beyond it.
func (r *Repository) UpsertCategory(ctx context.Context, c *models.Category) (bool, error) {
	return r.upsertCategory(ctx, c, false)
}

// ForceUpsertCategory stores a remote snapshot regardless of the stored version.
func (r *Repository) ForceUpsertCategory(ctx context.Context, c *models.Category) (bool, error) {
	return r.upsertCategory(ctx, c, true)
}

func (r *Repository) upsertCategory(ctx context.Context, c *models.Category, force bool) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if c.Version < 1 {
		c.Version = 1
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	query := `INSERT INTO categories (` + categoryInsertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, color = excluded.color, icon = excluded.icon,
		description = excluded.description, team_id = excluded.team_id, user_id = excluded.user_id,
		last_modified_by = excluded.last_modified_by, version = excluded.version,
		created_at = excluded.created_at, updated_at = excluded.updated_at`
	if !force {
		query += `
	WHERE excluded.version > categories.version`
	}
	res, err := r.q.ExecContext(ctx, query, categoryArgs(c)...)
	if err != nil {
		return false, wrapDBError("failed to upsert category", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// EnsureDefaultCategories seeds the built-in categories for userID. The ids
// are derived from user and key, so every device seeds identical rows and
// nothing needs to be synced. Returns how many rows were inserted.
func (r *Repository) EnsureDefaultCategories(ctx context.Context, userID models.UUID) (int, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	now := r.Now()
	inserted := 0
	err := r.InTx(ctx, func(tx *Repository) error {
		for _, d := range models.DefaultCategories {
			c := &models.Category{
				ID:             models.UUID(uuid.Derive("category", string(userID), d.Key)),
				Name:           d.Name,
				Color:          d.Color,
				Icon:           d.Icon,
				Description:    d.Description,
				UserID:         userID,
				LastModifiedBy: userID,
				Version:        1,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			res, err := tx.q.ExecContext(ctx,
				`INSERT INTO categories (`+categoryInsertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING`, categoryArgs(c)...)
			if err != nil {
				return wrapDBError("failed to seed category", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}
