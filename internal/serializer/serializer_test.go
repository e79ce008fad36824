package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/ir"
)

func todoSpec() *ir.ResourceSpec {
	return &ir.ResourceSpec{
		Name: "todo",
		Fields: []ir.FieldSpec{
			{Name: "done", Type: ir.FieldBool},
			{Name: "owner", Type: ir.FieldString},
			{Name: "rank", Type: ir.FieldInt, Validate: "min=0,max=10"},
			{Name: "tags", Type: ir.FieldArray, Validate: "max=2"},
			{Name: "title", Type: ir.FieldString, Required: true, Validate: "max=5"},
			{Name: "version", Type: ir.FieldInt, ReadOnly: true},
		},
	}
}

func TestToWire(t *testing.T) {
	s := New(todoSpec(), nil)
	e := ir.Entity{Type: "todo", ID: "1", Attrs: ir.Object{
		"title":  ir.String("a"),
		"secret": ir.String("hidden"),
	}}

	got, err := s.ToWire(e)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{
		"id":      ir.String("1"),
		"done":    ir.Null{},
		"owner":   ir.Null{},
		"rank":    ir.Null{},
		"tags":    ir.Null{},
		"title":   ir.String("a"),
		"version": ir.Null{},
	}, got)
}

func TestFromWireCreate(t *testing.T) {
	s := New(todoSpec(), nil)

	got, err := s.FromWire(ir.Object{
		"title":   ir.String("hello"),
		"rank":    ir.Int(3),
		"id":      ir.String("ignored"),
		"bogus":   ir.Int(1),
		"version": ir.Int(99),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, ir.String("hello"), got["title"])
	assert.Equal(t, ir.Int(3), got["rank"])
	assert.Equal(t, ir.Null{}, got["version"], "read-only fields cannot be set by clients")
	assert.NotContains(t, got, "id")
	assert.NotContains(t, got, "bogus")
}

func TestFromWireUpdateMergesExisting(t *testing.T) {
	s := New(todoSpec(), nil)
	existing := ir.Object{"title": ir.String("old"), "owner": ir.String("alice"), "version": ir.Int(4)}

	got, err := s.FromWire(ir.Object{"done": ir.Bool(true), "version": ir.Int(5)}, existing)
	require.NoError(t, err)

	assert.Equal(t, ir.String("old"), got["title"])
	assert.Equal(t, ir.String("alice"), got["owner"])
	assert.Equal(t, ir.Bool(true), got["done"])
	assert.Equal(t, ir.Int(4), got["version"])
}

func TestFromWireErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  ir.Object
		field string
		msg   string
	}{
		{"missing required", ir.Object{}, "title", MsgRequired},
		{"null required", ir.Object{"title": ir.Null{}}, "title", MsgNull},
		{"blank required", ir.Object{"title": ir.String("")}, "title", MsgBlank},
		{"wrong string type", ir.Object{"title": ir.Int(1)}, "title", "Not a valid string."},
		{"wrong int type", ir.Object{"title": ir.String("a"), "rank": ir.String("x")}, "rank", "A valid integer is required."},
		{"wrong bool type", ir.Object{"title": ir.String("a"), "done": ir.String("yes")}, "done", "Must be a valid boolean."},
		{"string too long", ir.Object{"title": ir.String("toolong")}, "title", "Ensure this field has no more than 5 characters."},
		{"int too large", ir.Object{"title": ir.String("a"), "rank": ir.Int(11)}, "rank", "Ensure this value is less than or equal to 10."},
		{"int too small", ir.Object{"title": ir.String("a"), "rank": ir.Int(-1)}, "rank", "Ensure this value is greater than or equal to 0."},
	}

	s := New(todoSpec(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.FromWire(tt.data, nil)
			require.Error(t, err)
			require.True(t, IsValidationError(err))

			ve := err.(*ValidationError)
			assert.Equal(t, []string{tt.msg}, ve.Fields[tt.field])
		})
	}
}

func TestValidationErrorDetail(t *testing.T) {
	_, err := New(todoSpec(), nil).FromWire(ir.Object{"rank": ir.String("x")}, nil)
	require.Error(t, err)

	ve := err.(*ValidationError)
	assert.Equal(t, ir.Object{
		"rank":  ir.Array{ir.String("A valid integer is required.")},
		"title": ir.Array{ir.String(MsgRequired)},
	}, ve.Detail())
	assert.Equal(t, "validation failed: rank: A valid integer is required.; title: This field is required.", err.Error())
}

func TestFromWireOptionalNull(t *testing.T) {
	got, err := New(todoSpec(), nil).FromWire(ir.Object{"title": ir.String("a"), "owner": ir.Null{}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Null{}, got["owner"])
}
