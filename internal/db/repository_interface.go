package db

import (
	"context"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// TaskRepository defines operations for task persistence.
type TaskRepository interface {
	GetTask(ctx context.Context, id models.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, userID models.UUID, filter *TaskFilter) ([]*models.Task, error)
	CreateTask(ctx context.Context, t *models.Task) error
	UpdateTask(ctx context.Context, id models.UUID, patch models.TaskPatch, modifiedBy models.UUID) (*models.Task, error)
	DeleteTask(ctx context.Context, id models.UUID) (*models.Task, error)
}

// ProjectRepository defines operations for project persistence.
type ProjectRepository interface {
	GetProject(ctx context.Context, id models.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, userID models.UUID) ([]*models.Project, error)
	CreateProject(ctx context.Context, p *models.Project) error
	UpdateProject(ctx context.Context, id models.UUID, patch models.ProjectPatch, modifiedBy models.UUID) (*models.Project, error)
	DeleteProject(ctx context.Context, id models.UUID) (*models.Project, error)
}

// CategoryRepository defines operations for category persistence.
type CategoryRepository interface {
	GetCategory(ctx context.Context, id models.UUID) (*models.Category, error)
	ListCategories(ctx context.Context, userID models.UUID) ([]*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, id models.UUID, patch models.CategoryPatch, modifiedBy models.UUID) (*models.Category, error)
	DeleteCategory(ctx context.Context, id models.UUID) (*models.Category, error)
	EnsureDefaultCategories(ctx context.Context, userID models.UUID) (int, error)
}

// RemoteApplier applies server snapshots and deletes.
type RemoteApplier interface {
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

// ChangeLogRepository defines operations for change log persistence.
type ChangeLogRepository interface {
	InsertSyncLog(ctx context.Context, e *models.ChangeLogEntry) error
	ListSyncLogsSince(ctx context.Context, userID models.UUID, since models.Timestamp) ([]*models.ChangeLogEntry, error)
	CountSyncLogsSince(ctx context.Context, userID models.UUID, since models.Timestamp) (int, error)
	DeleteSyncLogsThrough(ctx context.Context, cutoff models.Timestamp) (int64, error)
	DeleteSyncLogsForEntity(ctx context.Context, entityType models.EntityType, entityID models.UUID) (int64, error)
	LatestSyncLogTimestamp(ctx context.Context) (models.Timestamp, error)
}

// ConflictLogRepository defines operations for conflict log persistence.
type ConflictLogRepository interface {
	CreateConflictLog(ctx context.Context, c *models.ConflictLog) error
	ListConflictLogs(ctx context.Context, limit int) ([]*models.ConflictLog, error)
}

// MetadataRepository defines operations on sync_metadata.
type MetadataRepository interface {
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error
	AdvanceTimestamp(ctx context.Context, key string, ts models.Timestamp) (bool, error)
	GetTimestamp(ctx context.Context, key string) (models.Timestamp, error)
}

// SyncRepository combines repositories needed for sync operations.
type SyncRepository interface {
	RemoteApplier
	ChangeLogRepository
	ConflictLogRepository
	MetadataRepository
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ TaskRepository        = (*Repository)(nil)
	_ ProjectRepository     = (*Repository)(nil)
	_ CategoryRepository    = (*Repository)(nil)
	_ RemoteApplier         = (*Repository)(nil)
	_ ChangeLogRepository   = (*Repository)(nil)
	_ ConflictLogRepository = (*Repository)(nil)
	_ MetadataRepository    = (*Repository)(nil)
	_ SyncRepository        = (*Repository)(nil)
)
