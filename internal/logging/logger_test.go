package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// =====================================================
// Output format
// =====================================================

func TestLogger_Info_writesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("sync completed", map[string]interface{}{"uploaded": 3})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	if entry["message"] != "sync completed" {
		t.Errorf("message = %v, want 'sync completed'", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
	ctx, ok := entry["context"].(map[string]interface{})
	if !ok {
		t.Fatalf("context = %T, want object", entry["context"])
	}
	if ctx["uploaded"] != float64(3) {
		t.Errorf("context.uploaded = %v, want 3", ctx["uploaded"])
	}
}

func TestLogger_minLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["message"] != "shown" {
		t.Errorf("message = %v, want shown", lines[0]["message"])
	}
}

func TestLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Printf("slow query: %dms\n", 250)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["message"] != "slow query: 250ms" || lines[0]["level"] != "warning" {
		t.Errorf("line = %v", lines[0])
	}
}

func TestLogger_ErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.ErrorWithCode("sync failed", apperrors.ErrNetwork, errors.New("dial tcp: refused"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["code"] != string(apperrors.ErrNetwork) {
		t.Errorf("code = %v, want %s", lines[0]["code"], apperrors.ErrNetwork)
	}
	if !strings.Contains(lines[0]["error"].(string), "refused") {
		t.Errorf("error = %v, want underlying message", lines[0]["error"])
	}
}

func TestMergeContext(t *testing.T) {
	merged := mergeContext(map[string]interface{}{"a": 1}, map[string]interface{}{"b": 2})
	if len(merged) != 2 {
		t.Errorf("len(merged) = %d, want 2", len(merged))
	}
	if mergeContext() != nil {
		t.Error("mergeContext() with no maps should be nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(New(&buf, LevelDebug))

	Debug("via global")

	if !strings.Contains(buf.String(), "via global") {
		t.Errorf("global logger did not write, got %q", buf.String())
	}
}
