package changelog

import (
	"context"
	"testing"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/models"
)

const user = models.UUID("11111111-1111-4111-8111-111111111111")

func setupLog(t *testing.T, now func() time.Time) (*Log, *db.Repository) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() failed: %v", err)
	}
	repo := db.NewRepository(database.DB)
	t.Cleanup(func() {
		repo.Close()
		database.Close()
	})
	return New(repo, NewClock(now)), repo
}

func frozen(ts string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, ts)
	return func() time.Time { return t }
}

// =====================================================
// Clock Tests
// =====================================================

func TestClock_strictlyIncreasing(t *testing.T) {
	c := NewClock(frozen("2024-03-01T10:00:00Z"))
	first := c.Next()
	second := c.Next()
	if !second.After(first) {
		t.Errorf("Next() = %v then %v, want strictly increasing", first, second)
	}
	if second.Sub(first.Time) != time.Microsecond {
		t.Errorf("step = %v, want 1µs", second.Sub(first.Time))
	}
}

func TestClock_observe(t *testing.T) {
	c := NewClock(frozen("2024-03-01T10:00:00Z"))
	future, _ := models.ParseTimestamp("2024-03-02T00:00:00.000000Z")
	c.Observe(future)
	if got := c.Next(); !got.After(future) {
		t.Errorf("Next() = %v, want after %v", got, future)
	}
}

// =====================================================
// Log Tests
// =====================================================

func TestAppend_recordsSnapshot(t *testing.T) {
	log, _ := setupLog(t, frozen("2024-03-01T10:00:00Z"))
	ctx := context.Background()
	task := &models.Task{ID: "task-1", Title: "Pay rent", UserID: user, TeamID: "team-1", Version: 2}

	entry, err := log.Append(ctx, user, models.EntityTask, task.ID, models.ActionUpdate, task)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if entry.TeamID != "team-1" {
		t.Errorf("TeamID = %q, want team-1", entry.TeamID)
	}
	if entry.Version() != 2 {
		t.Errorf("Version() = %d, want 2", entry.Version())
	}
	if entry.Timestamp.String() != "2024-03-01T10:00:00.000000Z" {
		t.Errorf("Timestamp = %s", entry.Timestamp)
	}
}

func TestAppend_rejectsUnknownKinds(t *testing.T) {
	log, _ := setupLog(t, nil)
	ctx := context.Background()

	if _, err := log.Append(ctx, user, "note", "x", models.ActionCreate, "{}"); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("unknown entity type error = %v", err)
	}
	if _, err := log.Append(ctx, user, models.EntityTask, "x", "merge", "{}"); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("unknown action error = %v", err)
	}
	if _, err := log.Append(ctx, user, models.EntityTask, "x", models.ActionCreate, "not json"); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("bad snapshot error = %v", err)
	}
}

func TestCollectSince_andPending(t *testing.T) {
	log, _ := setupLog(t, frozen("2024-03-01T10:00:00Z"))
	ctx := context.Background()

	var entries []*models.ChangeLogEntry
	for _, id := range []models.UUID{"a", "b", "c"} {
		e, err := log.Append(ctx, user, models.EntityTask, id, models.ActionCreate, models.Tombstone{ID: id, UserID: user, Version: 1})
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		entries = append(entries, e)
	}

	got, err := log.CollectSince(ctx, user, models.Epoch)
	if err != nil || len(got) != 3 {
		t.Fatalf("CollectSince() = %d, %v; want 3", len(got), err)
	}
	for i := range got {
		if got[i].ID != entries[i].ID {
			t.Errorf("entry %d out of order", i)
		}
	}
	if n, _ := log.PendingCount(ctx, user, entries[0].Timestamp); n != 2 {
		t.Errorf("PendingCount() = %d, want 2", n)
	}
}

func TestPruneBefore(t *testing.T) {
	log, _ := setupLog(t, frozen("2024-03-01T10:00:00Z"))
	ctx := context.Background()
	first, _ := log.Append(ctx, user, models.EntityTask, "a", models.ActionCreate, models.Tombstone{ID: "a", Version: 1})
	log.Append(ctx, user, models.EntityTask, "b", models.ActionCreate, models.Tombstone{ID: "b", Version: 1})

	if n, _ := log.PruneBefore(ctx, models.Timestamp{}); n != 0 {
		t.Errorf("PruneBefore(zero) removed %d, want 0", n)
	}
	n, err := log.PruneBefore(ctx, first.Timestamp)
	if err != nil || n != 1 {
		t.Errorf("PruneBefore() = %d, %v; want 1", n, err)
	}
	left, _ := log.CollectSince(ctx, user, models.Epoch)
	if len(left) != 1 || left[0].EntityID != "b" {
		t.Errorf("remaining = %+v", left)
	}
}

func TestRemoveEntity(t *testing.T) {
	log, _ := setupLog(t, nil)
	ctx := context.Background()
	log.Append(ctx, user, models.EntityTask, "a", models.ActionCreate, models.Tombstone{ID: "a", Version: 1})
	log.Append(ctx, user, models.EntityTask, "a", models.ActionUpdate, models.Tombstone{ID: "a", Version: 2})
	log.Append(ctx, user, models.EntityProject, "a", models.ActionCreate, models.Tombstone{ID: "a", Version: 1})

	n, err := log.RemoveEntity(ctx, models.EntityTask, "a")
	if err != nil || n != 2 {
		t.Errorf("RemoveEntity() = %d, %v; want 2", n, err)
	}
}

func TestSeed(t *testing.T) {
	log, repo := setupLog(t, frozen("2024-03-01T10:00:00Z"))
	ctx := context.Background()
	entry, _ := log.Append(ctx, user, models.EntityTask, "a", models.ActionCreate, models.Tombstone{ID: "a", Version: 1})

	// A fresh process whose wall clock reads earlier than the stored entry.
	reopened := New(repo, NewClock(frozen("2024-02-01T00:00:00Z")))
	if err := reopened.Seed(ctx); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	next, _ := reopened.Append(ctx, user, models.EntityTask, "b", models.ActionCreate, models.Tombstone{ID: "b", Version: 1})
	if !next.Timestamp.After(entry.Timestamp) {
		t.Errorf("seeded timestamp %v should follow %v", next.Timestamp, entry.Timestamp)
	}
}

// =====================================================
// Helper Tests
// =====================================================

func TestLatest(t *testing.T) {
	entries := []*models.ChangeLogEntry{
		{EntityType: models.EntityTask, EntityID: "a", Action: models.ActionCreate},
		{EntityType: models.EntityTask, EntityID: "b", Action: models.ActionCreate},
		{EntityType: models.EntityTask, EntityID: "a", Action: models.ActionUpdate},
		{EntityType: models.EntityProject, EntityID: "a", Action: models.ActionCreate},
		{EntityType: models.EntityTask, EntityID: "b", Action: models.ActionDelete},
	}
	got := Latest(entries)
	want := []struct {
		id     models.UUID
		action models.ChangeAction
	}{
		{"a", models.ActionUpdate},
		{"a", models.ActionCreate},
		{"b", models.ActionDelete},
	}
	if len(got) != len(want) {
		t.Fatalf("Latest() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].EntityID != want[i].id || got[i].Action != want[i].action {
			t.Errorf("entry %d = %s/%s, want %s/%s", i, got[i].EntityID, got[i].Action, want[i].id, want[i].action)
		}
	}
}

func TestPruneCutoff(t *testing.T) {
	cursor, _ := models.ParseTimestamp("2024-03-01T12:00:00.000000Z")
	pushed, _ := models.ParseTimestamp("2024-03-01T11:00:00.000000Z")

	got := PruneCutoff(cursor, pushed, time.Hour)
	if got.String() != "2024-03-01T10:00:00.000000Z" {
		t.Errorf("PruneCutoff() = %s, want 10:00", got)
	}
	if !PruneCutoff(cursor, models.Timestamp{}, time.Hour).IsZero() {
		t.Error("PruneCutoff() with no pushed mark should be zero")
	}
}
