package db

import (
	"fmt"
	"strings"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// Filter represents a single task filter condition.
type Filter interface {
	// SQL returns the SQL fragment for this filter
	SQL() string

	// Args returns the arguments for this filter
	Args() []interface{}

	// Valid checks if the filter is valid
	Valid() bool
}

// StatusFilter matches any of the given statuses.
type StatusFilter struct {
	Statuses []models.TaskStatus
}

// Valid checks that at least one status is given and all are known.
func (f *StatusFilter) Valid() bool {
	if len(f.Statuses) == 0 {
		return false
	}
	for _, s := range f.Statuses {
		if !s.Valid() {
			return false
		}
	}
	return true
}

// SQL returns the SQL fragment for status filtering.
func (f *StatusFilter) SQL() string {
	return "t.status IN (" + placeholders(len(f.Statuses)) + ")"
}

// Args returns the arguments for status filtering.
func (f *StatusFilter) Args() []interface{} {
	args := make([]interface{}, len(f.Statuses))
	for i, s := range f.Statuses {
		args[i] = string(s)
	}
	return args
}

// PriorityFilter filters by task priority.
type PriorityFilter struct {
	Priority models.Priority
}

// Valid checks if the priority is known.
func (f *PriorityFilter) Valid() bool {
	return f.Priority.Valid()
}

// SQL returns the SQL fragment for priority filtering.
func (f *PriorityFilter) SQL() string {
	return "t.priority = ?"
}

// Args returns the arguments for priority filtering.
func (f *PriorityFilter) Args() []interface{} {
	return []interface{}{string(f.Priority)}
}

// ReferenceFilter matches a foreign reference column (category or project).
type ReferenceFilter struct {
	Column string
	ID     models.UUID
}

// Valid checks the column is filterable and an id is given.
func (f *ReferenceFilter) Valid() bool {
	switch f.Column {
	case "category_id", "project_id", "team_id":
		return f.ID != ""
	}
	return false
}

// SQL returns the SQL fragment for reference filtering.
func (f *ReferenceFilter) SQL() string {
	return "t." + f.Column + " = ?"
}

// Args returns the arguments for reference filtering.
func (f *ReferenceFilter) Args() []interface{} {
	return []interface{}{string(f.ID)}
}

// DueDateRangeFilter filters by due date, both bounds inclusive.
type DueDateRangeFilter struct {
	From models.Date
	To   models.Date
}

// Valid checks if the date range is valid.
func (f *DueDateRangeFilter) Valid() bool {
	if f.From.IsZero() && f.To.IsZero() {
		return false
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return false
	}
	return true
}

// SQL returns the SQL fragment for due date filtering.
func (f *DueDateRangeFilter) SQL() string {
	var parts []string
	if !f.From.IsZero() {
		parts = append(parts, "t.due_date >= ?")
	}
	if !f.To.IsZero() {
		parts = append(parts, "t.due_date <= ?")
	}
	return strings.Join(parts, " AND ")
}

// Args returns the arguments for due date filtering.
func (f *DueDateRangeFilter) Args() []interface{} {
	var args []interface{}
	if !f.From.IsZero() {
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		args = append(args, f.To.String())
	}
	return args
}

// SearchTermFilter matches a substring of title, description or notes.
type SearchTermFilter struct {
	Term string
}

// Valid checks the term is not blank.
func (f *SearchTermFilter) Valid() bool {
	return strings.TrimSpace(f.Term) != ""
}

// SQL returns the SQL fragment for text matching.
func (f *SearchTermFilter) SQL() string {
	return `(t.title LIKE ? ESCAPE '\' OR t.description LIKE ? ESCAPE '\' OR t.notes LIKE ? ESCAPE '\')`
}

// Args returns the arguments for text matching.
func (f *SearchTermFilter) Args() []interface{} {
	pattern := "%" + escapeLike(strings.TrimSpace(f.Term)) + "%"
	return []interface{}{pattern, pattern, pattern}
}

// FlagFilter is a fixed condition without arguments.
type FlagFilter struct {
	Condition string
}

// Valid checks the condition is set.
func (f *FlagFilter) Valid() bool {
	return f.Condition != ""
}

// SQL returns the fixed condition.
func (f *FlagFilter) SQL() string {
	return f.Condition
}

// Args returns no arguments.
func (f *FlagFilter) Args() []interface{} {
	return nil
}

// FilterBuilder builds SQL filter conditions from multiple filters.
type FilterBuilder struct {
	filters []Filter
}

// NewFilterBuilder creates a new FilterBuilder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]Filter, 0),
	}
}

func (fb *FilterBuilder) add(f Filter) *FilterBuilder {
	if f.Valid() {
		fb.filters = append(fb.filters, f)
	}
	return fb
}

// Status adds a status filter.
func (fb *FilterBuilder) Status(statuses ...models.TaskStatus) *FilterBuilder {
	return fb.add(&StatusFilter{Statuses: statuses})
}

// Priority adds a priority filter.
func (fb *FilterBuilder) Priority(p models.Priority) *FilterBuilder {
	return fb.add(&PriorityFilter{Priority: p})
}

// Category adds a category filter.
func (fb *FilterBuilder) Category(id models.UUID) *FilterBuilder {
	return fb.add(&ReferenceFilter{Column: "category_id", ID: id})
}

// Project adds a project filter.
func (fb *FilterBuilder) Project(id models.UUID) *FilterBuilder {
	return fb.add(&ReferenceFilter{Column: "project_id", ID: id})
}

// Team adds a team filter.
func (fb *FilterBuilder) Team(id models.UUID) *FilterBuilder {
	return fb.add(&ReferenceFilter{Column: "team_id", ID: id})
}

// DueBetween adds a due date range filter. Either bound may be zero.
func (fb *FilterBuilder) DueBetween(from, to models.Date) *FilterBuilder {
	return fb.add(&DueDateRangeFilter{From: from, To: to})
}

// Search adds a free text filter.
func (fb *FilterBuilder) Search(term string) *FilterBuilder {
	return fb.add(&SearchTermFilter{Term: term})
}

// HideCompleted excludes done tasks.
func (fb *FilterBuilder) HideCompleted() *FilterBuilder {
	return fb.add(&FlagFilter{Condition: "t.status <> 'done'"})
}

// RecurringOnly keeps recurring tasks only.
func (fb *FilterBuilder) RecurringOnly() *FilterBuilder {
	return fb.add(&FlagFilter{Condition: "t.is_recurring = 1"})
}

// HasFilters returns true if any filters have been added.
func (fb *FilterBuilder) HasFilters() bool {
	return len(fb.filters) > 0
}

// Count returns the number of filters.
func (fb *FilterBuilder) Count() int {
	return len(fb.filters)
}

// Build builds the SQL WHERE fragment and returns the arguments.
func (fb *FilterBuilder) Build() (string, []interface{}) {
	if !fb.HasFilters() {
		return "", nil
	}

	var sqlParts []string
	var args []interface{}
	for _, filter := range fb.filters {
		sqlParts = append(sqlParts, filter.SQL())
		args = append(args, filter.Args()...)
	}
	return strings.Join(sqlParts, " AND "), args
}

// Reset clears all filters.
func (fb *FilterBuilder) Reset() *FilterBuilder {
	fb.filters = make([]Filter, 0)
	return fb
}

// Clone creates a copy of the FilterBuilder.
func (fb *FilterBuilder) Clone() *FilterBuilder {
	clone := NewFilterBuilder()
	clone.filters = append(clone.filters, fb.filters...)
	return clone
}

// String returns a string representation of the filters (for debugging).
func (fb *FilterBuilder) String() string {
	if !fb.HasFilters() {
		return "(no filters)"
	}
	var parts []string
	for _, filter := range fb.filters {
		parts = append(parts, fmt.Sprintf("%T", filter))
	}
	return strings.Join(parts, ", ")
}

// TaskFilter is the user-facing list query.
type TaskFilter struct {
	Statuses      []models.TaskStatus
	Priority      models.Priority
	CategoryID    models.UUID
	ProjectID     models.UUID
	TeamID        models.UUID
	DueFrom       models.Date
	DueTo         models.Date
	Search        string
	HideCompleted bool
	RecurringOnly bool
}

// Builder converts the filter into a FilterBuilder. Invalid parts are dropped.
func (f *TaskFilter) Builder() *FilterBuilder {
	fb := NewFilterBuilder()
	if f == nil {
		return fb
	}
	if len(f.Statuses) > 0 {
		fb.Status(f.Statuses...)
	}
	if f.Priority != "" {
		fb.Priority(f.Priority)
	}
	fb.Category(f.CategoryID).Project(f.ProjectID).Team(f.TeamID)
	if !f.DueFrom.IsZero() || !f.DueTo.IsZero() {
		fb.DueBetween(f.DueFrom, f.DueTo)
	}
	fb.Search(f.Search)
	if f.HideCompleted {
		fb.HideCompleted()
	}
	if f.RecurringOnly {
		fb.RecurringOnly()
	}
	return fb
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
