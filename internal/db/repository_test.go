package db

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/uuid"
)

const (
	alice = models.UUID("11111111-1111-4111-8111-111111111111")
	bob   = models.UUID("22222222-2222-4222-8222-222222222222")
)

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newDraft(title string) *models.Task {
	return &models.Task{
		Title:   title,
		DueDate: models.MustParseDate("2024-03-01"),
		UserID:  alice,
	}
}

func createTask(t *testing.T, repo *Repository, task *models.Task) *models.Task {
	t.Helper()
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	return task
}

// =====================================================
// Task Tests
// =====================================================

func TestCreateTask_assignsIdentity(t *testing.T) {
	repo := setupTestRepo(t)
	task := createTask(t, repo, newDraft("Pay rent"))

	if !uuid.IsValid(string(task.ID)) {
		t.Errorf("ID = %q, want v4 uuid", task.ID)
	}
	if task.Version != 1 {
		t.Errorf("Version = %d, want 1", task.Version)
	}
	if task.Priority != models.PriorityMedium || task.Status != models.StatusPending {
		t.Errorf("defaults = %s/%s, want medium/pending", task.Priority, task.Status)
	}
	if task.LastModifiedBy != alice {
		t.Errorf("LastModifiedBy = %q, want %q", task.LastModifiedBy, alice)
	}

	got, err := repo.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "Pay rent" || got.DueDate.String() != "2024-03-01" {
		t.Errorf("GetTask() = %+v", got)
	}
	if !got.CreatedAt.Equal(task.CreatedAt.Time) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, task.CreatedAt)
	}
	if got.CategoryID != "" || !got.CompletedAt.IsZero() {
		t.Errorf("optional fields should round trip empty, got %+v", got)
	}
}

func TestCreateTask_validation(t *testing.T) {
	repo := setupTestRepo(t)
	err := repo.CreateTask(context.Background(), &models.Task{UserID: alice, DueDate: models.MustParseDate("2024-03-01")})
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("CreateTask() error = %v, want VALIDATION_ERROR", err)
	}
}

func TestUpdateTask_incrementsVersion(t *testing.T) {
	repo := setupTestRepo(t)
	repo.SetClock(steppingClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))
	ctx := context.Background()
	task := createTask(t, repo, newDraft("Water plants"))

	title := "Water all plants"
	updated, err := repo.UpdateTask(ctx, task.ID, models.TaskPatch{Title: &title}, bob)
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if updated.LastModifiedBy != bob {
		t.Errorf("LastModifiedBy = %q, want %q", updated.LastModifiedBy, bob)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Error("UpdatedAt should move forward")
	}

	got, _ := repo.GetTask(ctx, task.ID)
	if got.Title != title || got.Version != 2 {
		t.Errorf("stored task = %q v%d", got.Title, got.Version)
	}
}

func TestUpdateTask_completionLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	task := createTask(t, repo, newDraft("File taxes"))

	done := models.StatusDone
	completed, err := repo.UpdateTask(ctx, task.ID, models.TaskPatch{Status: &done}, alice)
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if completed.ProgressPercentage != 100 || completed.CompletedAt.IsZero() {
		t.Errorf("done task progress=%d completedAt=%v", completed.ProgressPercentage, completed.CompletedAt)
	}

	pending := models.StatusPending
	reopened, err := repo.UpdateTask(ctx, task.ID, models.TaskPatch{Status: &pending}, alice)
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if reopened.ProgressPercentage != 0 || !reopened.CompletedAt.IsZero() {
		t.Errorf("reopened task progress=%d completedAt=%v", reopened.ProgressPercentage, reopened.CompletedAt)
	}
	if reopened.Version != 3 {
		t.Errorf("Version = %d, want 3", reopened.Version)
	}
}

func TestUpdateTask_notFound(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.UpdateTask(context.Background(), models.UUID(uuid.New()), models.TaskPatch{}, alice)
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("UpdateTask() error = %v, want NOT_FOUND", err)
	}
}

func TestDeleteTask_returnsLastState(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	task := createTask(t, repo, newDraft("Return books"))

	deleted, err := repo.DeleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if deleted.ID != task.ID || deleted.Version != 1 {
		t.Errorf("DeleteTask() = %+v", deleted)
	}
	if _, err := repo.GetTask(ctx, task.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetTask() after delete error = %v, want NOT_FOUND", err)
	}
	if removed, _ := repo.RemoveTask(ctx, task.ID); removed {
		t.Error("RemoveTask() on missing row should report false")
	}
}

func TestListTasks_visibility(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	teamID := models.UUID(uuid.New())

	if err := repo.ReplaceTeams(ctx, bob, []models.TeamWithMembers{{
		Team:    models.Team{ID: teamID, Name: "Household", OwnerID: alice},
		Members: []models.TeamMember{{UserID: alice, Role: models.RoleOwner}, {UserID: bob}},
	}}); err != nil {
		t.Fatalf("ReplaceTeams() failed: %v", err)
	}

	createTask(t, repo, newDraft("Private"))
	shared := newDraft("Shared")
	shared.TeamID = teamID
	createTask(t, repo, shared)

	bobs, err := repo.ListTasks(ctx, bob, nil)
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(bobs) != 1 || bobs[0].Title != "Shared" {
		t.Errorf("bob sees %d tasks, want only the shared one", len(bobs))
	}

	alices, _ := repo.ListTasks(ctx, alice, nil)
	if len(alices) != 2 {
		t.Errorf("alice sees %d tasks, want 2", len(alices))
	}
}

func TestListTasks_filters(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	early := newDraft("Dentist appointment")
	early.DueDate = models.MustParseDate("2024-02-01")
	early.Priority = models.PriorityHigh
	createTask(t, repo, early)

	late := newDraft("Buy groceries")
	late.DueDate = models.MustParseDate("2024-04-01")
	late.Status = models.StatusDone
	createTask(t, repo, late)

	tests := []struct {
		name   string
		filter *TaskFilter
		want   []string
	}{
		{"none", nil, []string{"Dentist appointment", "Buy groceries"}},
		{"priority", &TaskFilter{Priority: models.PriorityHigh}, []string{"Dentist appointment"}},
		{"hide completed", &TaskFilter{HideCompleted: true}, []string{"Dentist appointment"}},
		{"due range", &TaskFilter{DueFrom: models.MustParseDate("2024-03-01")}, []string{"Buy groceries"}},
		{"search", &TaskFilter{Search: "grocer"}, []string{"Buy groceries"}},
		{"status", &TaskFilter{Statuses: []models.TaskStatus{models.StatusInProgress}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListTasks(ctx, alice, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListTasks() returned %d tasks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Title != tt.want[i] {
					t.Errorf("task[%d] = %q, want %q", i, got[i].Title, tt.want[i])
				}
			}
		})
	}
}

// =====================================================
// Upsert Tests
// =====================================================

func TestUpsertTask_versionGuard(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	task := createTask(t, repo, newDraft("Original"))

	stale := task.Clone()
	stale.Title = "Stale"
	if written, err := repo.UpsertTask(ctx, stale); err != nil || written {
		t.Errorf("UpsertTask(same version) = %v, %v; want false, nil", written, err)
	}

	newer := task.Clone()
	newer.Title = "Newer"
	newer.Version = 3
	if written, err := repo.UpsertTask(ctx, newer); err != nil || !written {
		t.Errorf("UpsertTask(newer) = %v, %v; want true, nil", written, err)
	}

	older := task.Clone()
	older.Title = "Forced"
	older.Version = 2
	if written, err := repo.ForceUpsertTask(ctx, older); err != nil || !written {
		t.Errorf("ForceUpsertTask() = %v, %v; want true, nil", written, err)
	}

	got, _ := repo.GetTask(ctx, task.ID)
	if got.Title != "Forced" || got.Version != 2 {
		t.Errorf("stored = %q v%d, want Forced v2", got.Title, got.Version)
	}
}

func TestUpsertTask_insertsUnknownRow(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	remote := &models.Task{
		ID:      models.UUID(uuid.New()),
		Title:   "From server",
		DueDate: models.MustParseDate("2024-05-05"),
		UserID:  bob,
		Version: 4,
	}
	if written, err := repo.UpsertTask(ctx, remote); err != nil || !written {
		t.Fatalf("UpsertTask() = %v, %v", written, err)
	}
	got, err := repo.GetTask(ctx, remote.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Version != 4 || got.Priority != models.PriorityMedium || got.CreatedAt.IsZero() {
		t.Errorf("normalized row = %+v", got)
	}
}

func TestRecurringInstanceUniqueIndex(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	parent := newDraft("Weekly review")
	parent.IsRecurring = true
	parent.RecurrencePattern = models.RecurrenceWeekly
	createTask(t, repo, parent)

	instance := func() *models.Task {
		return &models.Task{
			ID:           models.UUID(uuid.New()),
			Title:        "Weekly review",
			DueDate:      models.MustParseDate("2024-03-08"),
			UserID:       alice,
			ParentTaskID: parent.ID,
			Version:      1,
		}
	}
	if _, err := repo.UpsertTask(ctx, instance()); err != nil {
		t.Fatalf("first instance failed: %v", err)
	}
	_, err := repo.UpsertTask(ctx, instance())
	if !apperrors.Is(err, apperrors.ErrConstraint) {
		t.Errorf("duplicate instance error = %v, want CONSTRAINT_VIOLATION", err)
	}
}

// =====================================================
// Project and Category Tests
// =====================================================

func TestDeleteProject_detachesTasks(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	project := &models.Project{Name: "Renovation", UserID: alice}
	if err := repo.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if project.Color != models.DefaultProjectColor || project.Version != 1 {
		t.Errorf("project defaults = %q v%d", project.Color, project.Version)
	}

	task := newDraft("Paint walls")
	task.ProjectID = project.ID
	createTask(t, repo, task)

	if _, err := repo.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject() failed: %v", err)
	}
	got, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("task should survive project delete: %v", err)
	}
	if got.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", got.ProjectID)
	}
	if _, err := repo.GetProject(ctx, project.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetProject() error = %v, want NOT_FOUND", err)
	}
}

func TestUpdateProject(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	project := &models.Project{Name: "Garden", UserID: alice}
	repo.CreateProject(ctx, project)

	color := "#00FF00"
	updated, err := repo.UpdateProject(ctx, project.ID, models.ProjectPatch{Color: &color}, alice)
	if err != nil {
		t.Fatalf("UpdateProject() failed: %v", err)
	}
	if updated.Version != 2 || updated.Color != color {
		t.Errorf("UpdateProject() = %q v%d", updated.Color, updated.Version)
	}
}

func TestCategoryCRUD(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	c := &models.Category{Name: "Errands", Color: "#111111", UserID: alice}
	if err := repo.CreateCategory(ctx, c); err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	name := "Errands & chores"
	updated, err := repo.UpdateCategory(ctx, c.ID, models.CategoryPatch{Name: &name}, alice)
	if err != nil || updated.Version != 2 {
		t.Fatalf("UpdateCategory() = %+v, %v", updated, err)
	}
	list, _ := repo.ListCategories(ctx, alice)
	if len(list) != 1 || list[0].Name != name {
		t.Errorf("ListCategories() = %+v", list)
	}
	if _, err := repo.DeleteCategory(ctx, c.ID); err != nil {
		t.Errorf("DeleteCategory() failed: %v", err)
	}
}

func TestEnsureDefaultCategories_idempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	n, err := repo.EnsureDefaultCategories(ctx, alice)
	if err != nil {
		t.Fatalf("EnsureDefaultCategories() failed: %v", err)
	}
	if n != len(models.DefaultCategories) {
		t.Errorf("inserted %d, want %d", n, len(models.DefaultCategories))
	}
	n, _ = repo.EnsureDefaultCategories(ctx, alice)
	if n != 0 {
		t.Errorf("second run inserted %d, want 0", n)
	}

	id := models.UUID(uuid.Derive("category", string(alice), "bills"))
	c, err := repo.GetCategory(ctx, id)
	if err != nil || c.Name != "Bills" {
		t.Errorf("GetCategory(bills) = %+v, %v", c, err)
	}
}

// =====================================================
// Team Tests
// =====================================================

func TestReplaceTeams_dropsStaleTeams(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	first := models.UUID(uuid.New())
	second := models.UUID(uuid.New())

	repo.ReplaceTeams(ctx, alice, []models.TeamWithMembers{{
		Team:    models.Team{ID: first, Name: "A", OwnerID: alice},
		Members: []models.TeamMember{{UserID: alice, Role: models.RoleOwner}},
	}})
	if err := repo.ReplaceTeams(ctx, alice, []models.TeamWithMembers{{
		Team:    models.Team{ID: second, Name: "B", OwnerID: bob},
		Members: []models.TeamMember{{UserID: alice}, {UserID: bob, Role: models.RoleOwner}},
	}}); err != nil {
		t.Fatalf("ReplaceTeams() failed: %v", err)
	}

	teams, err := repo.ListTeams(ctx, alice)
	if err != nil {
		t.Fatalf("ListTeams() failed: %v", err)
	}
	if len(teams) != 1 || teams[0].ID != second {
		t.Fatalf("ListTeams() = %+v, want only team B", teams)
	}
	if len(teams[0].Members) != 2 {
		t.Errorf("members = %d, want 2", len(teams[0].Members))
	}
	ids, _ := repo.TeamIDsForUser(ctx, bob)
	if len(ids) != 1 || ids[0] != second {
		t.Errorf("TeamIDsForUser(bob) = %v", ids)
	}
}

// =====================================================
// Change Log and Metadata Tests
// =====================================================

func logEntry(user models.UUID, team models.UUID, ts string) *models.ChangeLogEntry {
	stamp, _ := models.ParseTimestamp(ts)
	return &models.ChangeLogEntry{
		ID:           models.UUID(uuid.New()),
		UserID:       user,
		EntityType:   models.EntityTask,
		EntityID:     models.UUID(uuid.New()),
		Action:       models.ActionCreate,
		TeamID:       team,
		Timestamp:    stamp,
		DataSnapshot: `{"id":"x","version":1}`,
	}
}

func TestSyncLogs_sinceAndPrune(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	entries := []*models.ChangeLogEntry{
		logEntry(alice, "", "2024-03-01T10:00:00.000000Z"),
		logEntry(alice, "", "2024-03-01T11:00:00.000000Z"),
		logEntry(bob, "", "2024-03-01T12:00:00.000000Z"),
	}
	for _, e := range entries {
		if err := repo.InsertSyncLog(ctx, e); err != nil {
			t.Fatalf("InsertSyncLog() failed: %v", err)
		}
	}

	all, err := repo.ListSyncLogsSince(ctx, alice, models.Timestamp{})
	if err != nil {
		t.Fatalf("ListSyncLogsSince() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("zero cursor returned %d entries, want 2", len(all))
	}

	after, _ := repo.ListSyncLogsSince(ctx, alice, entries[0].Timestamp)
	if len(after) != 1 || after[0].ID != entries[1].ID {
		t.Errorf("since first entry = %d entries, want the second only", len(after))
	}
	if n, _ := repo.CountSyncLogsSince(ctx, alice, entries[0].Timestamp); n != 1 {
		t.Errorf("CountSyncLogsSince() = %d, want 1", n)
	}

	latest, _ := repo.LatestSyncLogTimestamp(ctx)
	if !latest.Equal(entries[2].Timestamp.Time) {
		t.Errorf("LatestSyncLogTimestamp() = %v, want %v", latest, entries[2].Timestamp)
	}

	pruned, err := repo.DeleteSyncLogsThrough(ctx, entries[1].Timestamp)
	if err != nil || pruned != 2 {
		t.Errorf("DeleteSyncLogsThrough() = %d, %v; want 2", pruned, err)
	}
	if n, _ := repo.DeleteSyncLogsForEntity(ctx, models.EntityTask, entries[2].EntityID); n != 1 {
		t.Errorf("DeleteSyncLogsForEntity() = %d, want 1", n)
	}
}

func TestSyncLogs_teamVisibility(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	teamID := models.UUID(uuid.New())
	repo.ReplaceTeams(ctx, bob, []models.TeamWithMembers{{
		Team:    models.Team{ID: teamID, Name: "Shared", OwnerID: alice},
		Members: []models.TeamMember{{UserID: alice}, {UserID: bob}},
	}})

	repo.InsertSyncLog(ctx, logEntry(alice, teamID, "2024-03-01T10:00:00.000000Z"))
	repo.InsertSyncLog(ctx, logEntry(alice, "", "2024-03-01T10:00:01.000000Z"))

	got, _ := repo.ListSyncLogsSince(ctx, bob, models.Epoch)
	if len(got) != 1 || got[0].TeamID != teamID {
		t.Errorf("bob sees %d entries, want the team entry only", len(got))
	}
}

func TestAdvanceTimestamp_forwardOnly(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if ts, _ := repo.LastSyncAt(ctx); !ts.Equal(models.Epoch.Time) {
		t.Errorf("LastSyncAt() before sync = %v, want epoch", ts)
	}

	later, _ := models.ParseTimestamp("2024-03-01T12:00:00.000000Z")
	earlier, _ := models.ParseTimestamp("2024-03-01T09:00:00.000000Z")

	if moved, err := repo.AdvanceTimestamp(ctx, MetaLastSyncAt, later); err != nil || !moved {
		t.Errorf("AdvanceTimestamp(later) = %v, %v; want true", moved, err)
	}
	if moved, _ := repo.AdvanceTimestamp(ctx, MetaLastSyncAt, earlier); moved {
		t.Error("AdvanceTimestamp(earlier) should not move the cursor")
	}
	if moved, _ := repo.AdvanceTimestamp(ctx, MetaLastSyncAt, later); moved {
		t.Error("AdvanceTimestamp(equal) should not report a change")
	}
	if ts, _ := repo.LastSyncAt(ctx); !ts.Equal(later.Time) {
		t.Errorf("LastSyncAt() = %v, want %v", ts, later)
	}
}

func TestMetadata(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.GetMetadata(ctx, MetaAuthToken); ok || err != nil {
		t.Errorf("GetMetadata(missing) = %v, %v", ok, err)
	}
	repo.SetMetadata(ctx, MetaAuthToken, "one")
	repo.SetMetadata(ctx, MetaAuthToken, "two")
	if v, ok, _ := repo.GetMetadata(ctx, MetaAuthToken); !ok || v != "two" {
		t.Errorf("GetMetadata() = %q, %v; want two", v, ok)
	}
}

func TestConflictLog(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	c := &models.ConflictLog{
		ID:            models.UUID(uuid.New()),
		EntityType:    models.EntityTask,
		EntityID:      models.UUID(uuid.New()),
		LocalAction:   models.ActionUpdate,
		LocalVersion:  2,
		ServerVersion: 3,
		Resolution:    "server_wins",
	}
	if err := repo.CreateConflictLog(ctx, c); err != nil {
		t.Fatalf("CreateConflictLog() failed: %v", err)
	}
	logs, err := repo.ListConflictLogs(ctx, 0)
	if err != nil || len(logs) != 1 {
		t.Fatalf("ListConflictLogs() = %v, %v", logs, err)
	}
	if logs[0].ServerVersion != 3 || logs[0].LocalAction != models.ActionUpdate || logs[0].DetectedAt.IsZero() {
		t.Errorf("conflict = %+v", logs[0])
	}
}

// =====================================================
// Transaction Tests
// =====================================================

func TestInTx_rollsBackOnError(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	var id models.UUID

	err := repo.InTx(ctx, func(tx *Repository) error {
		if !tx.InTransaction() {
			t.Error("tx repository should report InTransaction")
		}
		task := newDraft("Rolled back")
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		id = task.ID
		return apperrors.New(apperrors.ErrInternal, "abort")
	})
	if !apperrors.Is(err, apperrors.ErrInternal) {
		t.Fatalf("InTx() error = %v, want INTERNAL_ERROR", err)
	}
	if _, err := repo.GetTask(ctx, id); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("task should be rolled back, GetTask() error = %v", err)
	}
}

func TestNilRepository(t *testing.T) {
	var repo *Repository
	if _, err := repo.GetTask(context.Background(), "x"); !apperrors.Is(err, apperrors.ErrNotInitialized) {
		t.Errorf("GetTask() on nil repository error = %v, want NOT_INITIALIZED", err)
	}
}
