package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDString(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{ID{Resource: "todo", Action: "update"}, "todo-update"},
		{ID{Resource: "todo", Action: "update", Entity: "7"}, "todo-update-7"},
		{ID{Resource: "todo", Action: "update", User: "alice"}, "todo-update-alice"},
		{ID{Resource: "todo", Action: "update", Entity: "7", User: "alice"}, "todo-update-7-alice"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.id.String())
	}
}

func TestIDEquality(t *testing.T) {
	a := Detail("todo", "update", "1")
	b := ID{Resource: "todo", Action: "update", Entity: "1"}
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Detail("todo", "delete", "1"))
}

func TestSetAlgebra(t *testing.T) {
	a := Broadcast("todo", "update")
	b := Detail("todo", "update", "1")
	c := ID{Resource: "todo", Action: "update", User: "bob"}

	old := NewSet(a, b)
	next := NewSet(b, c)

	assert.Equal(t, []string{"todo-update"}, old.Minus(next).Names())
	assert.Equal(t, []string{"todo-update-1"}, old.Intersect(next).Names())
	assert.Equal(t, []string{"todo-update-bob"}, next.Minus(old).Names())
	assert.Equal(t, []string{"todo-update", "todo-update-1", "todo-update-bob"}, old.Union(next).Names())
}

func TestSetNamesSortedAndEmpty(t *testing.T) {
	assert.Empty(t, Set{}.Names())
	s := NewSet(Broadcast("todo", "update"), Broadcast("todo", "create"), Broadcast("todo", "update"))
	assert.Equal(t, []string{"todo-create", "todo-update"}, s.Names())
}
