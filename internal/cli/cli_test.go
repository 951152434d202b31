package cli

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/taskin/backend/internal/authority"
	"github.com/kimhsiao/taskin/backend/internal/models"
)

const testUser = "11111111-1111-4111-8111-111111111111"

var idPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func extractID(t *testing.T, out string) string {
	t.Helper()
	id := idPattern.FindString(out)
	if id == "" {
		t.Fatalf("no id in output %q", out)
	}
	return id
}

// cliEnv is an initialized config in a temp dir.
type cliEnv struct {
	configPath string
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TASKIN_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("TASKIN_LOG_LEVEL", "error")

	env := &cliEnv{configPath: filepath.Join(dir, "config.yaml")}
	out, err := env.run(t, "init", "--user", testUser)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, testUser) {
		t.Errorf("init output missing user id: %s", out)
	}
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.Execute()
	return buf.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, out)
	}
	return out
}

// =====================================================
// Init Tests
// =====================================================

func TestInit_refusesOverwrite(t *testing.T) {
	env := setupCLI(t)

	if _, err := env.run(t, "init"); err == nil {
		t.Error("second init should fail without --force")
	}
	env.mustRun(t, "init", "--force", "--user", testUser)
}

func TestInit_rejectsBadUser(t *testing.T) {
	dir := t.TempDir()
	env := &cliEnv{configPath: filepath.Join(dir, "config.yaml")}

	if _, err := env.run(t, "init", "--user", "not-a-uuid"); err == nil {
		t.Error("init should reject a malformed user id")
	}
}

// =====================================================
// Task Tests
// =====================================================

func TestTaskCommands(t *testing.T) {
	env := setupCLI(t)

	out := env.mustRun(t, "task", "add", "Pay", "rent", "--due", "2024-03-01", "--priority", "high")
	if !strings.Contains(out, "Pay rent") || !strings.Contains(out, "2024-03-01") {
		t.Fatalf("task add output = %q", out)
	}
	id := extractID(t, out)

	out = env.mustRun(t, "task", "list")
	if !strings.Contains(out, "Pay rent") {
		t.Errorf("task list output = %q", out)
	}

	noted := extractID(t, env.mustRun(t, "task", "add", "Shop", "--due", "2024-03-02", "--notes", "buy **milk**"))
	out = env.mustRun(t, "task", "show", noted)
	if !strings.Contains(out, "buy milk") || strings.Contains(out, "**") {
		t.Errorf("task show output = %q, want plain notes", out)
	}
	if !hasField(out, "version", "1") {
		t.Errorf("task show output = %q, want version 1", out)
	}
	env.mustRun(t, "task", "rm", noted)

	env.mustRun(t, "task", "done", id)
	out = env.mustRun(t, "task", "list")
	if !strings.Contains(out, "No tasks.") {
		t.Errorf("completed task should be hidden: %q", out)
	}
	out = env.mustRun(t, "task", "list", "--all")
	if !strings.Contains(out, "[x]") {
		t.Errorf("task list --all output = %q", out)
	}

	env.mustRun(t, "task", "rm", id)
	out = env.mustRun(t, "task", "list", "--all")
	if !strings.Contains(out, "No tasks.") {
		t.Errorf("deleted task still listed: %q", out)
	}

	if _, err := env.run(t, "task", "add", "Bad", "--due", "tomorrow"); err == nil {
		t.Error("task add should reject an unparseable due date")
	}

	weekly := extractID(t, env.mustRun(t, "task", "add", "Standup", "--due", "2024-03-01", "--recurring", "weekly"))
	out = env.mustRun(t, "task", "done", weekly)
	if !strings.Contains(out, "2024-03-08 (generated on schedule)") {
		t.Errorf("task done output = %q, want next due date", out)
	}
}

func TestProjectCommands(t *testing.T) {
	env := setupCLI(t)

	id := extractID(t, env.mustRun(t, "project", "add", "Home"))

	out := env.mustRun(t, "project", "list")
	if !strings.Contains(out, "Home") {
		t.Errorf("project list output = %q", out)
	}
	env.mustRun(t, "project", "rm", id)
	out = env.mustRun(t, "project", "list")
	if !strings.Contains(out, "No projects.") {
		t.Errorf("deleted project still listed: %q", out)
	}
}

// =====================================================
// Export Tests
// =====================================================

func TestExportImportCommands(t *testing.T) {
	env := setupCLI(t)
	archive := filepath.Join(t.TempDir(), "backup.tar.gz")

	id := extractID(t, env.mustRun(t, "task", "add", "Renew passport", "--due", "2024-05-01"))

	out := env.mustRun(t, "export", archive, "--password", "s3cret-pass")
	if !hasField(out, "tasks", "1") || !hasField(out, "encrypted", "true") {
		t.Errorf("export output = %q", out)
	}

	if _, err := env.run(t, "import", archive, "--password", "wrong-pass"); err == nil {
		t.Error("import should reject a wrong password")
	}

	env.mustRun(t, "task", "rm", id)
	t.Setenv("TASKIN_EXPORT_PASSWORD", "s3cret-pass")
	out = env.mustRun(t, "import", archive)
	if !hasField(out, "imported", "1") {
		t.Errorf("import output = %q, want 1 imported", out)
	}
	out = env.mustRun(t, "task", "show", id)
	if !strings.Contains(out, "Renew passport") {
		t.Errorf("task show output = %q, want restored task", out)
	}
}

// =====================================================
// Generate Tests
// =====================================================

func TestGenerateCommand(t *testing.T) {
	env := setupCLI(t)

	start := models.DateOf(time.Now()).AddDays(-2).String()
	env.mustRun(t, "task", "add", "Water", "plants", "--due", start, "--recurring", "daily")

	out := env.mustRun(t, "generate", "--dry-run")
	if !strings.Contains(out, "Water plants (daily)") {
		t.Fatalf("dry run output = %q", out)
	}

	out = env.mustRun(t, "generate")
	if !strings.Contains(out, "2 recurring instance(s) created") {
		t.Errorf("generate output = %q", out)
	}
	out = env.mustRun(t, "generate")
	if !strings.Contains(out, "0 recurring instance(s) created") {
		t.Errorf("second generate output = %q", out)
	}
	out = env.mustRun(t, "generate", "--dry-run")
	if !strings.Contains(out, "Nothing due.") {
		t.Errorf("dry run after generate = %q", out)
	}
}

// =====================================================
// Sync Tests
// =====================================================

func TestSyncAndStatusCommands(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := authority.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() failed: %v", err)
	}
	defer store.Close()
	server := httptest.NewServer(authority.NewServer(authority.NewService(store), authority.StaticTokens{"secret": testUser}).Handler())
	defer server.Close()

	env := setupCLI(t)
	t.Setenv("TASKIN_SYNC_SERVER_URL", server.URL)

	env.mustRun(t, "login", "--token", "secret")
	env.mustRun(t, "task", "add", "Call", "mom", "--due", "2024-03-01")

	out := env.mustRun(t, "status")
	if !hasField(out, "pending", "1") {
		t.Errorf("status output = %q, want one pending change", out)
	}

	out = env.mustRun(t, "sync", "--teams")
	if !strings.Contains(out, "Sync complete") {
		t.Errorf("sync output = %q", out)
	}

	out = env.mustRun(t, "status")
	if !hasField(out, "pending", "0") {
		t.Errorf("status after sync = %q, want nothing pending", out)
	}

	env.mustRun(t, "logout")
	if _, err := env.run(t, "sync"); err == nil {
		t.Error("sync without a token should fail")
	}
}

// hasField reports whether out has a "label value" line.
func hasField(out, label, value string) bool {
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) == 2 && f[0] == label && f[1] == value {
			return true
		}
	}
	return false
}
