package db

import (
	"strings"
	"testing"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// TestStatusFilter_Valid verifies status validation.
func TestStatusFilter_Valid(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.TaskStatus
		expected bool
	}{
		{"single", []models.TaskStatus{models.StatusPending}, true},
		{"multiple", []models.TaskStatus{models.StatusPending, models.StatusDone}, true},
		{"empty", nil, false},
		{"unknown", []models.TaskStatus{"archived"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &StatusFilter{Statuses: tt.statuses}
			if got := f.Valid(); got != tt.expected {
				t.Errorf("StatusFilter.Valid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatusFilter_SQL(t *testing.T) {
	f := &StatusFilter{Statuses: []models.TaskStatus{models.StatusPending, models.StatusInProgress}}
	if got := f.SQL(); got != "t.status IN (?, ?)" {
		t.Errorf("SQL() = %q", got)
	}
	if args := f.Args(); len(args) != 2 || args[1] != "in_progress" {
		t.Errorf("Args() = %v", args)
	}
}

func TestDueDateRangeFilter(t *testing.T) {
	from := models.MustParseDate("2024-03-01")
	to := models.MustParseDate("2024-03-31")

	f := &DueDateRangeFilter{From: from, To: to}
	if !f.Valid() {
		t.Fatal("range should be valid")
	}
	if got := f.SQL(); got != "t.due_date >= ? AND t.due_date <= ?" {
		t.Errorf("SQL() = %q", got)
	}
	if (&DueDateRangeFilter{From: to, To: from}).Valid() {
		t.Error("inverted range should be invalid")
	}
	if (&DueDateRangeFilter{}).Valid() {
		t.Error("empty range should be invalid")
	}
}

func TestSearchTermFilter_escapesWildcards(t *testing.T) {
	f := &SearchTermFilter{Term: " 50%_off "}
	args := f.Args()
	if len(args) != 3 {
		t.Fatalf("Args() returned %d args, want 3", len(args))
	}
	if args[0] != `%50\%\_off%` {
		t.Errorf("Args()[0] = %q", args[0])
	}
}

func TestReferenceFilter_rejectsUnknownColumn(t *testing.T) {
	if (&ReferenceFilter{Column: "title", ID: "x"}).Valid() {
		t.Error("non reference column should be rejected")
	}
	if (&ReferenceFilter{Column: "project_id"}).Valid() {
		t.Error("empty id should be rejected")
	}
}

// TestFilterBuilder_Build verifies fragments are joined with AND.
func TestFilterBuilder_Build(t *testing.T) {
	fb := NewFilterBuilder().
		Status(models.StatusPending).
		Priority(models.PriorityHigh).
		Project("p1").
		Priority("urgent") // dropped

	if fb.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", fb.Count())
	}
	sql, args := fb.Build()
	if strings.Count(sql, " AND ") != 2 {
		t.Errorf("Build() sql = %q", sql)
	}
	if len(args) != 3 {
		t.Errorf("Build() args = %v", args)
	}

	clone := fb.Clone()
	fb.Reset()
	if fb.HasFilters() {
		t.Error("Reset() should clear filters")
	}
	if clone.Count() != 3 {
		t.Error("Clone() should be independent of Reset()")
	}
	if fb.String() != "(no filters)" {
		t.Errorf("String() = %q", fb.String())
	}
}

func TestTaskFilter_Builder(t *testing.T) {
	var nilFilter *TaskFilter
	if nilFilter.Builder().HasFilters() {
		t.Error("nil filter should build no conditions")
	}

	f := &TaskFilter{
		Statuses:      []models.TaskStatus{models.StatusPending},
		CategoryID:    "c1",
		DueFrom:       models.MustParseDate("2024-01-01"),
		Search:        "rent",
		HideCompleted: true,
		RecurringOnly: true,
	}
	if got := f.Builder().Count(); got != 6 {
		t.Errorf("Count() = %d, want 6", got)
	}
}
