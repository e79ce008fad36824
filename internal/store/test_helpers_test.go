package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/bindery/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTodo inserts a todo entity with the given attributes.
func insertTodo(t *testing.T, s *Store, id string, attrs ir.Object) ir.Entity {
	t.Helper()
	e, err := s.Insert(context.Background(), ir.Entity{Type: "todo", ID: id, Attrs: attrs})
	if err != nil {
		t.Fatalf("Insert(%s) failed: %v", id, err)
	}
	return e
}
