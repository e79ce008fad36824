package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/roach88/bindery/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"entities", "subscriptions"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Insert(ctx, ir.Entity{Type: "todo", ID: "1", Attrs: ir.Object{}}); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := s.Get(ctx, "todo", "1"); err != nil {
		t.Errorf("in-memory database lost its row: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_ResumesClock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s1.Insert(ctx, ir.Entity{Type: "todo", ID: id}); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	if got := s2.Clock().Current(); got != 3 {
		t.Errorf("Clock().Current() = %d, want 3", got)
	}
	e, err := s2.Insert(ctx, ir.Entity{Type: "todo", ID: "d"})
	if err != nil {
		t.Fatalf("Insert(d) failed: %v", err)
	}
	if e.Seq != 4 {
		t.Errorf("seq after reopen = %d, want 4", e.Seq)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

// Schema tests

func TestSchema_EntitiesTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "entities")
	for _, col := range []string{"resource", "id", "attrs", "seq", "created_seq"} {
		if !slices.Contains(columns, col) {
			t.Errorf("entities table missing column %q", col)
		}
	}

	indexes := getTableIndexes(t, s.db, "entities")
	if !slices.Contains(indexes, "idx_entities_order") {
		t.Error("entities table missing index idx_entities_order")
	}
}

func TestSchema_SubscriptionsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "subscriptions")
	for _, col := range []string{"id", "group_name", "conn_id", "seq"} {
		if !slices.Contains(columns, col) {
			t.Errorf("subscriptions table missing column %q", col)
		}
	}

	indexes := getTableIndexes(t, s.db, "subscriptions")
	for _, idx := range []string{"idx_subscriptions_conn", "idx_subscriptions_group"} {
		if !slices.Contains(indexes, idx) {
			t.Errorf("subscriptions table missing index %q", idx)
		}
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Build a v0 database by hand: tables without the group index.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("create v0 schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on v0 database failed: %v", err)
	}
	defer s.Close()

	if !slices.Contains(getTableIndexes(t, s.db, "subscriptions"), "idx_subscriptions_group") {
		t.Error("v1 migration did not create idx_subscriptions_group")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
