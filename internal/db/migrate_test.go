package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
)

func openRawMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"m/V1__create_a.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER PRIMARY KEY);")},
		"m/V1__create_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"m/V2__create_b.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER PRIMARY KEY);")},
		"m/V2__create_b.down.sql": {Data: []byte("DROP TABLE b;")},
		"m/README.md":             {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n); err != nil {
		t.Fatalf("sqlite_master query failed: %v", err)
	}
	return n == 1
}

// TestUp_appliesInOrder verifies pending migrations are applied and recorded.
func TestUp_appliesInOrder(t *testing.T) {
	db := openRawMemory(t)
	m := NewMigrator(db, testMigrations(), "m")
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	version, err := m.CurrentVersion()
	if err != nil || version != 2 {
		t.Errorf("CurrentVersion() = %d, %v; want 2", version, err)
	}
	applied, _ := m.GetAppliedMigrations()
	if len(applied) != 2 || applied[0].Description != "create_a" {
		t.Errorf("applied = %+v", applied)
	}
	if len(applied[0].Checksum) != 64 {
		t.Errorf("checksum length = %d, want 64", len(applied[0].Checksum))
	}

	// Second run is a no-op.
	if err := m.Up(); err != nil {
		t.Errorf("second Up() failed: %v", err)
	}
}

// TestUp_detectsModifiedMigration verifies checksum drift is reported.
func TestUp_detectsModifiedMigration(t *testing.T) {
	db := openRawMemory(t)
	fsys := testMigrations()
	m := NewMigrator(db, fsys, "m")
	m.Initialize()
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	fsys["m/V1__create_a.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT);")}
	err := NewMigrator(db, fsys, "m").Up()
	if err == nil || !strings.Contains(err.Error(), "modified") {
		t.Errorf("Up() error = %v, want modified migration error", err)
	}
}

// TestDown_rollsBackLatest verifies the last migration is undone.
func TestDown_rollsBackLatest(t *testing.T) {
	db := openRawMemory(t)
	m := NewMigrator(db, testMigrations(), "m")
	m.Initialize()
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	if err := m.Down(); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}
	if tableExists(t, db, "b") {
		t.Error("table b should be dropped")
	}
	if !tableExists(t, db, "a") {
		t.Error("table a should remain")
	}
	if v, _ := m.CurrentVersion(); v != 1 {
		t.Errorf("CurrentVersion() = %d, want 1", v)
	}
}

// TestDown_noMigrations verifies error when nothing was applied.
func TestDown_noMigrations(t *testing.T) {
	db := openRawMemory(t)
	m := NewMigrator(db, testMigrations(), "m")
	m.Initialize()
	if err := m.Down(); err == nil {
		t.Error("Down() should fail with no applied migrations")
	}
}

// TestEmbeddedMigrations verifies the shipped schema applies and rolls back.
func TestEmbeddedMigrations(t *testing.T) {
	db := openRawMemory(t)
	m := NewMigrator(db, Migrations, "migrations")
	m.Initialize()
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}
	if !tableExists(t, db, "sync_logs") {
		t.Error("sync_logs missing after Up()")
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("second Down() failed: %v", err)
	}
	if tableExists(t, db, "tasks") {
		t.Error("tasks should be dropped after rolling back V1")
	}
}
