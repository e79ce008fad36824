package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

type mapLoader map[string]ir.Entity

func (m mapLoader) Get(_ context.Context, resource, id string) (ir.Entity, error) {
	e, ok := m[resource+"/"+id]
	if !ok {
		return ir.Entity{}, fmt.Errorf("get %s/%s: %w", resource, id, store.ErrNotFound)
	}
	return e, nil
}

type errLoader struct{ err error }

func (l errLoader) Get(context.Context, string, string) (ir.Entity, error) {
	return ir.Entity{}, l.err
}

var fields = []string{"done", "owner", "title"}

func TestCaptureCreateIsEmpty(t *testing.T) {
	before, err := Capture(context.Background(), mapLoader{}, ir.Entity{Type: "todo", Attrs: ir.Object{"title": ir.String("a")}}, fields)
	require.NoError(t, err)
	assert.False(t, before.Found)
	assert.True(t, before.Changes.Empty())
}

func TestCaptureNotFoundIsEmpty(t *testing.T) {
	// Raced deletion: the entity has an id but no longer exists.
	before, err := Capture(context.Background(), mapLoader{}, ir.Entity{Type: "todo", ID: "gone"}, fields)
	require.NoError(t, err)
	assert.False(t, before.Found)
	assert.True(t, before.Changes.Empty())
}

func TestCaptureRecordsChangedFields(t *testing.T) {
	loader := mapLoader{"todo/1": {
		Type:  "todo",
		ID:    "1",
		Attrs: ir.Object{"title": ir.String("old"), "owner": ir.String("alice"), "done": ir.Bool(false)},
	}}
	proposed := ir.Entity{
		Type:  "todo",
		ID:    "1",
		Attrs: ir.Object{"title": ir.String("new"), "owner": ir.String("alice"), "done": ir.Bool(true)},
	}

	before, err := Capture(context.Background(), loader, proposed, fields)
	require.NoError(t, err)

	assert.True(t, before.Found)
	assert.Equal(t, "1", before.Entity.ID)
	assert.Equal(t, []string{"done", "title"}, before.Changes.Changed)
	assert.Equal(t, ir.Object{"done": ir.Bool(false), "title": ir.String("old")}, before.Changes.Previous)
	assert.Equal(t, before.Changes.Changed, before.Changes.Previous.SortedKeys())
}

func TestCapturePropagatesOtherErrors(t *testing.T) {
	_, err := Capture(context.Background(), errLoader{errors.New("disk full")}, ir.Entity{Type: "todo", ID: "1"}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		current  ir.Object
		proposed ir.Object
		changed  []string
	}{
		{"identical", ir.Object{"title": ir.String("a")}, ir.Object{"title": ir.String("a")}, nil},
		{"absent equals null", ir.Object{}, ir.Object{"owner": ir.Null{}}, nil},
		{"added value", ir.Object{}, ir.Object{"owner": ir.String("bob")}, []string{"owner"}},
		{"removed value", ir.Object{"owner": ir.String("bob")}, ir.Object{}, []string{"owner"}},
		{"undeclared ignored", ir.Object{"extra": ir.Int(1)}, ir.Object{"extra": ir.Int(2)}, nil},
		{"nested equality", ir.Object{"title": ir.String("x"), "done": ir.Bool(true)}, ir.Object{"done": ir.Bool(true), "title": ir.String("x")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Diff(tt.current, tt.proposed, fields)
			assert.Equal(t, tt.changed, rec.Changed)
		})
	}
}

func TestDiffRecordsNullForAbsentPrevious(t *testing.T) {
	rec := Diff(ir.Object{}, ir.Object{"owner": ir.String("bob")}, fields)
	assert.Equal(t, ir.Object{"owner": ir.Null{}}, rec.Previous)
}
