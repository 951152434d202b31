package models

import (
	"strings"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// RecurrencePattern controls how the next instance of a series is dated.
type RecurrencePattern string

const (
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

// Valid reports whether r is a known pattern.
func (r RecurrencePattern) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Task is the primary synced entity.
type Task struct {
	ID                 UUID              `db:"id" json:"id"`
	Title              string            `db:"title" json:"title"`
	Description        string            `db:"description" json:"description,omitempty"`
	Notes              string            `db:"notes" json:"notes,omitempty"`
	Priority           Priority          `db:"priority" json:"priority"`
	Status             TaskStatus        `db:"status" json:"status"`
	DueDate            Date              `db:"due_date" json:"dueDate"`
	CategoryID         UUID              `db:"category_id" json:"categoryId,omitempty"`
	ProjectID          UUID              `db:"project_id" json:"projectId,omitempty"`
	TeamID             UUID              `db:"team_id" json:"teamId,omitempty"`
	ProgressPercentage int               `db:"progress_percentage" json:"progressPercentage"`
	UserID             UUID              `db:"user_id" json:"userId"`
	LastModifiedBy     UUID              `db:"last_modified_by" json:"lastModifiedBy,omitempty"`
	Version            int               `db:"version" json:"version"`
	IsRecurring        bool              `db:"is_recurring" json:"isRecurring"`
	RecurrencePattern  RecurrencePattern `db:"recurrence_pattern" json:"recurrencePattern,omitempty"`
	ParentTaskID       UUID              `db:"parent_task_id" json:"parentTaskId,omitempty"`
	Attachments        Attachments       `db:"attachments" json:"attachments,omitzero"`
	CreatedAt          Timestamp         `db:"created_at" json:"createdAt"`
	UpdatedAt          Timestamp         `db:"updated_at" json:"updatedAt"`
	CompletedAt        Timestamp         `db:"completed_at" json:"completedAt,omitzero"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// SeriesID is the id shared by every instance of a recurring series.
func (t *Task) SeriesID() UUID {
	if t.ParentTaskID != "" {
		return t.ParentTaskID
	}
	return t.ID
}

// IsDone reports whether the task is completed.
func (t *Task) IsDone() bool {
	return t.Status == StatusDone
}

// Clone returns a copy that shares no slices with t.
func (t *Task) Clone() *Task {
	c := *t
	if t.Attachments.Items != nil {
		c.Attachments.Items = append([]Attachment(nil), t.Attachments.Items...)
	}
	return &c
}

// ApplyDefaults fills priority and status when a draft leaves them empty.
func (t *Task) ApplyDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// Validate checks the user-editable fields.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return apperrors.New(apperrors.ErrValidation, "task title is required")
	}
	if t.DueDate.IsZero() {
		return apperrors.New(apperrors.ErrValidation, "task due date is required")
	}
	if !t.Priority.Valid() {
		return apperrors.Newf(apperrors.ErrValidation, "invalid priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return apperrors.Newf(apperrors.ErrValidation, "invalid status %q", t.Status)
	}
	if t.ProgressPercentage < 0 || t.ProgressPercentage > 100 {
		return apperrors.Newf(apperrors.ErrValidation, "progress %d out of range 0-100", t.ProgressPercentage)
	}
	if t.RecurrencePattern != "" && !t.RecurrencePattern.Valid() {
		return apperrors.Newf(apperrors.ErrValidation, "invalid recurrence pattern %q", t.RecurrencePattern)
	}
	if t.IsRecurring && t.RecurrencePattern == "" {
		return apperrors.New(apperrors.ErrValidation, "recurring task needs a recurrence pattern")
	}
	return nil
}

// ReconcileStatus keeps status, progress and completion time consistent after
// a write. prev is the status before the write ("" on create).
//
// done forces progress 100; progress 100 forces done; leaving done while
// progress still reads 100 resets progress to 0.
func (t *Task) ReconcileStatus(prev TaskStatus, now Timestamp) {
	switch {
	case t.Status == StatusDone:
		t.ProgressPercentage = 100
	case t.ProgressPercentage == 100 && prev == StatusDone:
		t.ProgressPercentage = 0
	case t.ProgressPercentage == 100:
		t.Status = StatusDone
	}

	if t.Status == StatusDone {
		if prev != StatusDone || t.CompletedAt.IsZero() {
			t.CompletedAt = now
		}
	} else {
		t.CompletedAt = Timestamp{}
	}
}

// TaskPatch is a partial update. Nil fields are left untouched; an empty
// UUID clears an optional reference.
type TaskPatch struct {
	Title              *string            `json:"title,omitempty"`
	Description        *string            `json:"description,omitempty"`
	Notes              *string            `json:"notes,omitempty"`
	Priority           *Priority          `json:"priority,omitempty"`
	Status             *TaskStatus        `json:"status,omitempty"`
	DueDate            *Date              `json:"dueDate,omitempty"`
	CategoryID         *UUID              `json:"categoryId,omitempty"`
	ProjectID          *UUID              `json:"projectId,omitempty"`
	TeamID             *UUID              `json:"teamId,omitempty"`
	ProgressPercentage *int               `json:"progressPercentage,omitempty"`
	IsRecurring        *bool              `json:"isRecurring,omitempty"`
	RecurrencePattern  *RecurrencePattern `json:"recurrencePattern,omitempty"`
	Attachments        *Attachments       `json:"attachments,omitempty"`
}

// Apply merges the patch into t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.ProjectID != nil {
		t.ProjectID = *p.ProjectID
	}
	if p.TeamID != nil {
		t.TeamID = *p.TeamID
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.RecurrencePattern != nil {
		t.RecurrencePattern = *p.RecurrencePattern
	}
	if p.Attachments != nil {
		t.Attachments = *p.Attachments
	}
	// Progress before status so an explicit status wins over a stale progress.
	if p.ProgressPercentage != nil {
		t.ProgressPercentage = *p.ProgressPercentage
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}
