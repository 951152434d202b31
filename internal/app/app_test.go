package app

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/taskin/backend/internal/authority"
	"github.com/kimhsiao/taskin/backend/internal/config"
	"github.com/kimhsiao/taskin/backend/internal/db"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.UserID = "11111111-1111-4111-8111-111111111111"
	cfg.Recurring.Location = "UTC"
	return cfg
}

func openTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := Open(context.Background(), cfg, Options{Memory: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpen_requiresUser(t *testing.T) {
	_, err := Open(context.Background(), config.DefaultConfig(), Options{Memory: true})
	if !apperrors.Is(err, apperrors.ErrNotInitialized) {
		t.Errorf("Open() error = %v, want NOT_INITIALIZED", err)
	}
}

func TestOpen_invalidLocation(t *testing.T) {
	cfg := testConfig()
	cfg.Recurring.Location = "Nowhere/Special"

	_, err := Open(context.Background(), cfg, Options{Memory: true})
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Open() error = %v, want VALIDATION_ERROR", err)
	}
}

func TestOpen_wiresComponents(t *testing.T) {
	a := openTestApp(t, testConfig())

	if a.Engine.UserID() != a.UserID {
		t.Errorf("engine user = %s, want %s", a.Engine.UserID(), a.UserID)
	}
	if a.DeviceID == "" {
		t.Fatal("DeviceID should be generated")
	}
	stored, ok, err := a.Repo.GetMetadata(context.Background(), db.MetaDeviceID)
	if err != nil || !ok || stored != a.DeviceID {
		t.Errorf("stored device id = %q, %v, %v; want %q", stored, ok, err, a.DeviceID)
	}
	if a.Location.String() != "UTC" {
		t.Errorf("Location = %v, want UTC", a.Location)
	}

	categories, err := a.Tasks.ListCategories(context.Background(), a.UserID)
	if err != nil {
		t.Fatalf("ListCategories() failed: %v", err)
	}
	if len(categories) == 0 {
		t.Error("default categories should be created")
	}
}

func TestOpen_configuredDeviceID(t *testing.T) {
	cfg := testConfig()
	cfg.DeviceID = "laptop"

	a := openTestApp(t, cfg)
	if a.DeviceID != "laptop" {
		t.Errorf("DeviceID = %q, want laptop", a.DeviceID)
	}
}

func TestApp_syncAgainstAuthority(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := authority.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	defer store.Close()

	cfg := testConfig()
	server := authority.NewServer(authority.NewService(store), authority.StaticTokens{"secret": models.UUID(cfg.UserID)})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	cfg.Sync.ServerURL = ts.URL
	a := openTestApp(t, cfg)
	ctx := context.Background()

	if err := a.Tokens.SetToken(ctx, "secret"); err != nil {
		t.Fatalf("SetToken() failed: %v", err)
	}
	if _, err := a.Tasks.CreateTask(ctx, a.UserID, &models.Task{Title: "Water plants", DueDate: models.MustParseDate("2024-03-01")}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}

	events, cancel := a.Events.Subscribe(4)
	defer cancel()

	result, err := a.Scheduler.SyncNow(ctx)
	if err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if result.Pushed != 1 {
		t.Errorf("Pushed = %d, want 1", result.Pushed)
	}
	if n, _ := a.Engine.PendingChanges(ctx); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}

	first := <-events
	if first.Type != "sync.started" {
		t.Errorf("first event = %s, want sync.started", first.Type)
	}
}
