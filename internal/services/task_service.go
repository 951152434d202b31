// Package services is the mutation API used by the UI collaborators. Every
// write lands in the entity store and the change log in one transaction.
package services

import (
	"context"

	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/changelog"
)

// TaskService creates, edits and deletes tasks, projects and categories.
type TaskService struct {
	repo *db.Repository
	log  *changelog.Log
}

// NewTaskService creates a TaskService.
func NewTaskService(repo *db.Repository, log *changelog.Log) *TaskService {
	return &TaskService{repo: repo, log: log}
}

func (s *TaskService) ready() error {
	if s == nil || s.repo == nil || s.log == nil {
		return apperrors.New(apperrors.ErrNotInitialized, "task service is not initialized")
	}
	return nil
}

// =====================================================
// Tasks
// =====================================================

// GetTask returns a task by id.
func (s *TaskService) GetTask(ctx context.Context, id models.UUID) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.repo.GetTask(ctx, id)
}

// ListTasks returns the tasks visible to userID.
func (s *TaskService) ListTasks(ctx context.Context, userID models.UUID, filter *db.TaskFilter) ([]*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, userID, filter)
}

// RecurringTasks returns every recurring task visible to userID, generated
// instances included.
func (s *TaskService) RecurringTasks(ctx context.Context, userID models.UUID) ([]*models.Task, error) {
	return s.ListTasks(ctx, userID, &db.TaskFilter{RecurringOnly: true})
}

// CreateTask stores draft as a new task owned by userID.
func (s *TaskService) CreateTask(ctx context.Context, userID models.UUID, draft *models.Task) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, apperrors.New(apperrors.ErrValidation, "task is required")
	}
	task := draft.Clone()
	task.UserID = userID
	task.LastModifiedBy = userID

	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		_, err := s.log.With(tx).Append(ctx, userID, models.EntityTask, task.ID, models.ActionCreate, task)
		return err
	})
	if err != nil {
		return nil, err
	}

	logging.Info("Task created", map[string]interface{}{
		"task_id":   string(task.ID),
		"due_date":  task.DueDate.String(),
		"recurring": task.IsRecurring,
	})
	return task, nil
}

// UpdateTask applies patch to a task on behalf of userID.
func (s *TaskService) UpdateTask(ctx context.Context, userID, id models.UUID, patch models.TaskPatch) (*models.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var updated *models.Task
	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		t, err := tx.UpdateTask(ctx, id, patch, userID)
		if err != nil {
			return err
		}
		if _, err := s.log.With(tx).Append(ctx, userID, models.EntityTask, id, models.ActionUpdate, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Debug("Task updated", map[string]interface{}{
		"task_id": string(id),
		"version": updated.Version,
		"status":  string(updated.Status),
	})
	return updated, nil
}

// CompleteTask marks a task done.
func (s *TaskService) CompleteTask(ctx context.Context, userID, id models.UUID) (*models.Task, error) {
	done := models.StatusDone
	return s.UpdateTask(ctx, userID, id, models.TaskPatch{Status: &done})
}

// DeleteTask removes a task and records a tombstone.
func (s *TaskService) DeleteTask(ctx context.Context, userID, id models.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		last, err := tx.DeleteTask(ctx, id)
		if err != nil {
			return err
		}
		tomb := models.Tombstone{ID: last.ID, UserID: last.UserID, TeamID: last.TeamID, Version: last.Version}
		_, err = s.log.With(tx).Append(ctx, userID, models.EntityTask, id, models.ActionDelete, tomb)
		return err
	})
	if err != nil {
		return err
	}
	logging.Info("Task deleted", map[string]interface{}{"task_id": string(id)})
	return nil
}

// =====================================================
// Projects
// =====================================================

// ListProjects returns the projects visible to userID.
func (s *TaskService) ListProjects(ctx context.Context, userID models.UUID) ([]*models.Project, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.repo.ListProjects(ctx, userID)
}

// CreateProject stores draft as a new project owned by userID.
func (s *TaskService) CreateProject(ctx context.Context, userID models.UUID, draft *models.Project) (*models.Project, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, apperrors.New(apperrors.ErrValidation, "project is required")
	}
	p := *draft
	p.UserID = userID
	p.LastModifiedBy = userID

	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		if err := tx.CreateProject(ctx, &p); err != nil {
			return err
		}
		_, err := s.log.With(tx).Append(ctx, userID, models.EntityProject, p.ID, models.ActionCreate, &p)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.Info("Project created", map[string]interface{}{"project_id": string(p.ID)})
	return &p, nil
}

// UpdateProject applies patch to a project on behalf of userID.
func (s *TaskService) UpdateProject(ctx context.Context, userID, id models.UUID, patch models.ProjectPatch) (*models.Project, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var updated *models.Project
	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		p, err := tx.UpdateProject(ctx, id, patch, userID)
		if err != nil {
			return err
		}
		updated = p
		_, err = s.log.With(tx).Append(ctx, userID, models.EntityProject, id, models.ActionUpdate, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProject removes a project. Its tasks are kept with the reference
// cleared; every device clears the reference when it applies the delete.
func (s *TaskService) DeleteProject(ctx context.Context, userID, id models.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		last, err := tx.DeleteProject(ctx, id)
		if err != nil {
			return err
		}
		tomb := models.Tombstone{ID: last.ID, UserID: last.UserID, TeamID: last.TeamID, Version: last.Version}
		_, err = s.log.With(tx).Append(ctx, userID, models.EntityProject, id, models.ActionDelete, tomb)
		return err
	})
	if err != nil {
		return err
	}
	logging.Info("Project deleted", map[string]interface{}{"project_id": string(id)})
	return nil
}

// =====================================================
// Categories
// =====================================================

// ListCategories returns the categories visible to userID.
func (s *TaskService) ListCategories(ctx context.Context, userID models.UUID) ([]*models.Category, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, userID)
}

// EnsureDefaultCategories seeds the built-in categories for userID.
func (s *TaskService) EnsureDefaultCategories(ctx context.Context, userID models.UUID) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	n, err := s.repo.EnsureDefaultCategories(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info("Default categories seeded", map[string]interface{}{"count": n})
	}
	return n, nil
}

// CreateCategory stores draft as a new category owned by userID.
func (s *TaskService) CreateCategory(ctx context.Context, userID models.UUID, draft *models.Category) (*models.Category, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, apperrors.New(apperrors.ErrValidation, "category is required")
	}
	c := *draft
	c.UserID = userID
	c.LastModifiedBy = userID
	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		if err := tx.CreateCategory(ctx, &c); err != nil {
			return err
		}
		_, err := s.log.With(tx).Append(ctx, userID, models.EntityCategory, c.ID, models.ActionCreate, &c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCategory applies patch to a category on behalf of userID.
func (s *TaskService) UpdateCategory(ctx context.Context, userID, id models.UUID, patch models.CategoryPatch) (*models.Category, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var updated *models.Category
	err := s.repo.InTx(ctx, func(tx *db.Repository) error {
		c, err := tx.UpdateCategory(ctx, id, patch, userID)
		if err != nil {
			return err
		}
		updated = c
		_, err = s.log.With(tx).Append(ctx, userID, models.EntityCategory, id, models.ActionUpdate, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCategory removes a category and records a tombstone.
func (s *TaskService) DeleteCategory(ctx context.Context, userID, id models.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.repo.InTx(ctx, func(tx *db.Repository) error {
		last, err := tx.DeleteCategory(ctx, id)
		if err != nil {
			return err
		}
		tomb := models.Tombstone{ID: last.ID, UserID: last.UserID, TeamID: last.TeamID, Version: last.Version}
		_, err = s.log.With(tx).Append(ctx, userID, models.EntityCategory, id, models.ActionDelete, tomb)
		return err
	})
}

// =====================================================
// Teams
// =====================================================

// ListTeams returns the locally cached teams of userID.
func (s *TaskService) ListTeams(ctx context.Context, userID models.UUID) ([]models.TeamWithMembers, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.repo.ListTeams(ctx, userID)
}

// ReplaceTeamMembers installs the server's team memberships for userID.
// Memberships are not change-logged; the server owns them.
func (s *TaskService) ReplaceTeamMembers(ctx context.Context, userID models.UUID, teams []models.TeamWithMembers) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.repo.ReplaceTeams(ctx, userID, teams); err != nil {
		return err
	}
	logging.Debug("Team memberships replaced", map[string]interface{}{"teams": len(teams)})
	return nil
}
