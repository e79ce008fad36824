package filter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

func todoSpec() *ir.ResourceSpec {
	return &ir.ResourceSpec{
		Name: "todo",
		Fields: []ir.FieldSpec{
			{Name: "done", Type: ir.FieldBool},
			{Name: "owner", Type: ir.FieldString},
			{Name: "rank", Type: ir.FieldInt},
			{Name: "tags", Type: ir.FieldArray},
		},
	}
}

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := NewCompiler(todoSpec())
	require.NoError(t, err)
	return c
}

func TestCompileEmpty(t *testing.T) {
	cond, err := newCompiler(t).Compile("   ")
	require.NoError(t, err)
	assert.True(t, cond.IsZero())
}

func TestCompileSQL(t *testing.T) {
	tests := []struct {
		filter string
		sql    string
		args   []any
	}{
		{`owner = "alice"`, "json_extract(attrs, '$.owner') = ?", []any{"alice"}},
		{`rank >= 3`, "json_extract(attrs, '$.rank') >= ?", []any{int64(3)}},
		{`id != "x"`, "id != ?", []any{"x"}},
		{
			`owner = "alice" AND rank < 5`,
			"(json_extract(attrs, '$.owner') = ? AND json_extract(attrs, '$.rank') < ?)",
			[]any{"alice", int64(5)},
		},
		{
			`owner = "a" OR owner = "b"`,
			"(json_extract(attrs, '$.owner') = ? OR json_extract(attrs, '$.owner') = ?)",
			[]any{"a", "b"},
		},
	}
	c := newCompiler(t)
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			cond, err := c.Compile(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, cond.SQL)
			assert.Equal(t, tt.args, cond.Args)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	c := newCompiler(t)
	for _, f := range []string{
		`unknown = "x"`,
		`tags = "x"`,
		`owner = `,
		`rank = 1.5`,
	} {
		_, err := c.Compile(f)
		assert.ErrorIs(t, err, ErrInvalidFilter, f)
	}
}

func TestCompileAgainstStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	rows := []ir.Object{
		{"owner": ir.String("alice"), "rank": ir.Int(1), "done": ir.Bool(true)},
		{"owner": ir.String("alice"), "rank": ir.Int(7), "done": ir.Bool(false)},
		{"owner": ir.String("bob"), "rank": ir.Int(3), "done": ir.Bool(true)},
	}
	for i, attrs := range rows {
		_, err := s.Insert(ctx, ir.Entity{Type: "todo", ID: string(rune('a' + i)), Attrs: attrs})
		require.NoError(t, err)
	}

	c := newCompiler(t)
	tests := []struct {
		filter string
		want   int
	}{
		{`owner = "alice"`, 2},
		{`owner = "alice" AND rank > 2`, 1},
		{`rank = 7`, 1},
		{`NOT owner = "alice"`, 1},
		{`rank <= 3 OR owner = "nobody"`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			cond, err := c.Compile(tt.filter)
			require.NoError(t, err)
			n, err := s.Query("todo", cond).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}
