package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kimhsiao/taskin/backend/internal/cli"
)

func TestVersionDefault(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestRootCommand(t *testing.T) {
	root := cli.NewRootCmd(Version)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"--version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(buf.String(), Version) {
		t.Errorf("--version output = %q, want it to contain %q", buf.String(), Version)
	}

	want := []string{"init", "login", "sync", "status", "generate", "task", "project", "export", "import", "daemon"}
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
