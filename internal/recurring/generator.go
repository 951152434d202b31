// Package recurring creates the missing instances of recurring task series.
package recurring

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
)

// DefaultMaxPerSeries caps the instances created for one series in one run.
const DefaultMaxPerSeries = 100

// TaskStore is the slice of the task service the generator needs. Instances
// go through CreateTask so they are change-logged like any user edit.
type TaskStore interface {
	RecurringTasks(ctx context.Context, userID models.UUID) ([]*models.Task, error)
	CreateTask(ctx context.Context, userID models.UUID, draft *models.Task) (*models.Task, error)
}

// Config configures a Generator.
type Config struct {
	// LookaheadIntervals extends the horizon past today by this many pattern
	// steps. 0 generates through today.
	LookaheadIntervals int
	// MaxPerSeries defaults to DefaultMaxPerSeries.
	MaxPerSeries int
	// Location decides what "today" is. Defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Generator fills recurring series up to the horizon.
type Generator struct {
	store  TaskStore
	config Config
}

// NewGenerator creates a new Generator.
func NewGenerator(store TaskStore, config Config) *Generator {
	if config.MaxPerSeries <= 0 {
		config.MaxPerSeries = DefaultMaxPerSeries
	}
	if config.LookaheadIntervals < 0 {
		config.LookaheadIntervals = 0
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Generator{store: store, config: config}
}

// Today returns the current calendar date in the configured location.
func (g *Generator) Today() models.Date {
	return models.DateOf(g.config.Now().In(g.config.Location))
}

// NextDueDate returns the due date one pattern step after d. Monthly steps
// clamp to the last day of the target month.
func NextDueDate(d models.Date, pattern models.RecurrencePattern) models.Date {
	switch pattern {
	case models.RecurrenceDaily:
		return d.AddDays(1)
	case models.RecurrenceWeekly:
		return d.AddDays(7)
	case models.RecurrenceMonthly:
		return d.AddMonthsClamped(1)
	}
	return d
}

// Series is every known task of one recurring series.
type Series struct {
	ID    models.UUID
	Tasks []*models.Task
}

// Frontier returns the task with the latest due date.
func (s *Series) Frontier() *models.Task {
	var f *models.Task
	for _, t := range s.Tasks {
		if f == nil || t.DueDate.After(f.DueDate) ||
			(t.DueDate.Equal(f.DueDate) && t.CreatedAt.After(f.CreatedAt)) {
			f = t
		}
	}
	return f
}

func (s *Series) contains(id models.UUID) bool {
	for _, t := range s.Tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

// GroupSeries groups recurring tasks by series. Parent links are followed
// transitively, so an instance generated from an instance joins the root's
// series. Output is ordered by series id.
func GroupSeries(tasks []*models.Task) []*Series {
	byID := make(map[models.UUID]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	root := func(t *models.Task) models.UUID {
		id := t.SeriesID()
		seen := map[models.UUID]bool{t.ID: true}
		for {
			p, ok := byID[id]
			if !ok || p.ParentTaskID == "" || seen[id] {
				return id
			}
			seen[id] = true
			id = p.ParentTaskID
		}
	}

	groups := make(map[models.UUID]*Series)
	for _, t := range tasks {
		if !t.IsRecurring {
			continue
		}
		id := root(t)
		s, ok := groups[id]
		if !ok {
			s = &Series{ID: id}
			groups[id] = s
		}
		s.Tasks = append(s.Tasks, t)
	}

	out := make([]*Series, 0, len(groups))
	for _, s := range groups {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Plan lists the instances series needs so that it reaches the horizon
// derived from today. It also reports whether the cap cut the plan short.
func (g *Generator) Plan(series *Series, today models.Date) ([]*models.Task, bool) {
	frontier := series.Frontier()
	if frontier == nil || frontier.DueDate.IsZero() || !frontier.RecurrencePattern.Valid() {
		return nil, false
	}
	pattern := frontier.RecurrencePattern

	horizon := today
	for i := 0; i < g.config.LookaheadIntervals; i++ {
		horizon = NextDueDate(horizon, pattern)
	}

	existing := make(map[models.Date]bool, len(series.Tasks))
	for _, t := range series.Tasks {
		existing[t.DueDate] = true
	}

	var drafts []*models.Task
	for due := NextDueDate(frontier.DueDate, pattern); !due.After(horizon); due = NextDueDate(due, pattern) {
		if existing[due] {
			continue
		}
		if len(drafts) == g.config.MaxPerSeries {
			return drafts, true
		}
		drafts = append(drafts, newInstance(frontier, due))
	}
	return drafts, false
}

// newInstance copies the user-visible fields of frontier onto a fresh
// pending task due on due.
func newInstance(frontier *models.Task, due models.Date) *models.Task {
	return &models.Task{
		Title:             frontier.Title,
		Description:       frontier.Description,
		Notes:             frontier.Notes,
		Priority:          frontier.Priority,
		Status:            models.StatusPending,
		DueDate:           due,
		CategoryID:        frontier.CategoryID,
		ProjectID:         frontier.ProjectID,
		TeamID:            frontier.TeamID,
		UserID:            frontier.UserID,
		IsRecurring:       true,
		RecurrencePattern: frontier.RecurrencePattern,
		ParentTaskID:      frontier.ID,
	}
}

// SeriesSummary describes what a run would create for one series.
type SeriesSummary struct {
	SeriesID models.UUID              `json:"seriesId"`
	Title    string                   `json:"title"`
	Pattern  models.RecurrencePattern `json:"pattern"`
	DueDates []models.Date            `json:"dueDates"`
	Capped   bool                     `json:"capped,omitempty"`
}

// Summary reports the instances a run would create, without creating them.
func (g *Generator) Summary(ctx context.Context, userID models.UUID) ([]SeriesSummary, error) {
	if g.store == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "recurring generator not initialized")
	}
	tasks, err := g.store.RecurringTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := g.Today()

	var out []SeriesSummary
	for _, s := range GroupSeries(tasks) {
		drafts, capped := g.Plan(s, today)
		if len(drafts) == 0 {
			continue
		}
		sum := SeriesSummary{
			SeriesID: s.ID,
			Title:    drafts[0].Title,
			Pattern:  drafts[0].RecurrencePattern,
			Capped:   capped,
		}
		for _, d := range drafts {
			sum.DueDates = append(sum.DueDates, d.DueDate)
		}
		out = append(out, sum)
	}
	return out, nil
}

// GenerateDueRecurringInstances creates every missing instance up to the
// horizon for the series visible to userID and returns how many were
// created. A failing instance is logged and skipped.
func (g *Generator) GenerateDueRecurringInstances(ctx context.Context, userID models.UUID) (int, error) {
	if g.store == nil {
		return 0, apperrors.New(apperrors.ErrNotInitialized, "recurring generator not initialized")
	}
	tasks, err := g.store.RecurringTasks(ctx, userID)
	if err != nil {
		return 0, err
	}
	today := g.Today()

	created := 0
	for _, s := range GroupSeries(tasks) {
		drafts, capped := g.Plan(s, today)
		if capped {
			logging.Warn("Recurring series hit the per-run cap", map[string]interface{}{
				"series_id": string(s.ID),
				"cap":       g.config.MaxPerSeries,
			})
		}
		for _, draft := range drafts {
			if err := ctx.Err(); err != nil {
				return created, err
			}
			if _, err := g.store.CreateTask(ctx, userID, draft); err != nil {
				logging.ErrorWithCode("Failed to create recurring instance", apperrors.CodeOf(err), err, map[string]interface{}{
					"series_id": string(s.ID),
					"parent_id": string(draft.ParentTaskID),
					"due_date":  draft.DueDate.String(),
				})
				continue
			}
			created++
		}
	}

	if created > 0 {
		logging.Info("Recurring instances generated", map[string]interface{}{
			"user_id": string(userID),
			"created": created,
			"today":   today.String(),
		})
	}
	return created, nil
}

// NextAfterCompletion returns the due date that follows a completed
// recurring task and whether that instance already exists. Completion never
// creates it: generation is date-driven only. A zero date means task is not a
// completed recurring task.
func (g *Generator) NextAfterCompletion(ctx context.Context, userID models.UUID, task *models.Task) (models.Date, bool, error) {
	if task == nil || !task.IsRecurring || !task.IsDone() || !task.RecurrencePattern.Valid() || task.DueDate.IsZero() {
		return models.Date{}, false, nil
	}
	if g.store == nil {
		return models.Date{}, false, apperrors.New(apperrors.ErrNotInitialized, "recurring generator not initialized")
	}
	tasks, err := g.store.RecurringTasks(ctx, userID)
	if err != nil {
		return models.Date{}, false, err
	}

	next := NextDueDate(task.DueDate, task.RecurrencePattern)
	exists := false
	for _, s := range GroupSeries(tasks) {
		if !s.contains(task.ID) {
			continue
		}
		for _, t := range s.Tasks {
			exists = exists || t.DueDate.Equal(next)
		}
	}

	logging.Debug("Completion-triggered instance declined", map[string]interface{}{
		"task_id":     string(task.ID),
		"next_due":    next.String(),
		"next_exists": exists,
	})
	return next, exists, nil
}
