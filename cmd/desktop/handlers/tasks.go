package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/kimhsiao/taskin/backend/internal/db"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/notes"
)

// TaskAPI is the task service surface the handlers use.
type TaskAPI interface {
	GetTask(ctx context.Context, id models.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, userID models.UUID, filter *db.TaskFilter) ([]*models.Task, error)
	CreateTask(ctx context.Context, userID models.UUID, draft *models.Task) (*models.Task, error)
	UpdateTask(ctx context.Context, userID, id models.UUID, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, userID, id models.UUID) error
	ListProjects(ctx context.Context, userID models.UUID) ([]*models.Project, error)
	CreateProject(ctx context.Context, userID models.UUID, draft *models.Project) (*models.Project, error)
	UpdateProject(ctx context.Context, userID, id models.UUID, patch models.ProjectPatch) (*models.Project, error)
	DeleteProject(ctx context.Context, userID, id models.UUID) error
}

// TaskHandler handles task and project operations for one user.
type TaskHandler struct {
	svc    TaskAPI
	userID models.UUID
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc TaskAPI, userID models.UUID) *TaskHandler {
	return &TaskHandler{svc: svc, userID: userID}
}

// =====================================================
// Tasks
// =====================================================

// ListTasks handles GET /api/tasks.
// Query: status (comma separated), priority, project, category, search,
// hide_completed, recurring.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &db.TaskFilter{
		Priority:      models.Priority(q.Get("priority")),
		ProjectID:     models.UUID(q.Get("project")),
		CategoryID:    models.UUID(q.Get("category")),
		Search:        q.Get("search"),
		HideCompleted: q.Get("hide_completed") == "true",
		RecurringOnly: q.Get("recurring") == "true",
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			filter.Statuses = append(filter.Statuses, models.TaskStatus(strings.TrimSpace(part)))
		}
	}

	tasks, err := h.svc.ListTasks(r.Context(), h.userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var draft models.Task
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.CreateTask(r.Context(), h.userID, &draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask handles PATCH /api/tasks/{id}.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch models.TaskPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.svc.UpdateTask(r.Context(), h.userID, models.UUID(r.PathValue("id")), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTask(r.Context(), h.userID, models.UUID(r.PathValue("id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TaskNotes handles GET /api/tasks/{id}/notes.
// Returns the raw Markdown and its rendered HTML.
func (h *TaskHandler) TaskNotes(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTask(r.Context(), models.UUID(r.PathValue("id")))
	if err != nil {
		writeError(w, err)
		return
	}

	html, err := notes.RenderHTML(task.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       task.ID,
		"markdown": task.Notes,
		"html":     html,
	})
}

// =====================================================
// Projects
// =====================================================

// ListProjects handles GET /api/projects.
func (h *TaskHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context(), h.userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// CreateProject handles POST /api/projects.
func (h *TaskHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var draft models.Project
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.svc.CreateProject(r.Context(), h.userID, &draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// UpdateProject handles PATCH /api/projects/{id}.
func (h *TaskHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch models.ProjectPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.svc.UpdateProject(r.Context(), h.userID, models.UUID(r.PathValue("id")), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// DeleteProject handles DELETE /api/projects/{id}.
func (h *TaskHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProject(r.Context(), h.userID, models.UUID(r.PathValue("id"))); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
