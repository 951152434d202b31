package protocol

import (
	"context"
	"fmt"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// Applier stores remote snapshots and deletes. Upserts skip rows whose stored
// version is at or beyond the incoming one; Force variants do not.
type Applier interface {
	UpsertTask(ctx context.Context, t *models.Task) (bool, error)
	ForceUpsertTask(ctx context.Context, t *models.Task) (bool, error)
	RemoveTask(ctx context.Context, id models.UUID) (bool, error)
	UpsertProject(ctx context.Context, p *models.Project) (bool, error)
	ForceUpsertProject(ctx context.Context, p *models.Project) (bool, error)
	RemoveProject(ctx context.Context, id models.UUID) (bool, error)
	UpsertCategory(ctx context.Context, c *models.Category) (bool, error)
	ForceUpsertCategory(ctx context.Context, c *models.Category) (bool, error)
	RemoveCategory(ctx context.Context, id models.UUID) (bool, error)
}

// Apply writes the change into store and reports whether a row changed.
// With force the version guard is bypassed.
func (c *Change) Apply(ctx context.Context, store Applier, force bool) (bool, error) {
	if c.Action == models.ActionDelete {
		switch c.EntityType {
		case models.EntityTask:
			return store.RemoveTask(ctx, c.EntityID)
		case models.EntityProject:
			return store.RemoveProject(ctx, c.EntityID)
		case models.EntityCategory:
			return store.RemoveCategory(ctx, c.EntityID)
		}
		return false, fmt.Errorf("unknown entity type %q", c.EntityType)
	}

	switch c.EntityType {
	case models.EntityTask:
		t, err := models.DecodeTask(string(c.Data))
		if err != nil {
			return false, err
		}
		c.fill(&t.ID, &t.Version)
		if force {
			return store.ForceUpsertTask(ctx, t)
		}
		return store.UpsertTask(ctx, t)
	case models.EntityProject:
		p, err := models.DecodeProject(string(c.Data))
		if err != nil {
			return false, err
		}
		c.fill(&p.ID, &p.Version)
		if force {
			return store.ForceUpsertProject(ctx, p)
		}
		return store.UpsertProject(ctx, p)
	case models.EntityCategory:
		cat, err := models.DecodeCategory(string(c.Data))
		if err != nil {
			return false, err
		}
		c.fill(&cat.ID, &cat.Version)
		if force {
			return store.ForceUpsertCategory(ctx, cat)
		}
		return store.UpsertCategory(ctx, cat)
	}
	return false, fmt.Errorf("unknown entity type %q", c.EntityType)
}

// fill copies id and version from the envelope when the snapshot lacks them.
func (c *Change) fill(id *models.UUID, version *int) {
	if *id == "" {
		*id = c.EntityID
	}
	if *version < 1 {
		*version = c.Version
	}
}
