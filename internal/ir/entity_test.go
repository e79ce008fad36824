package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewChangeRecordDerivesChangedFields(t *testing.T) {
	rec := NewChangeRecord(Object{"title": String("old"), "done": Bool(false)})

	assert.Equal(t, []string{"done", "title"}, rec.Changed)
	assert.Equal(t, rec.Changed, rec.Previous.SortedKeys())
	assert.False(t, rec.Empty())
}

func TestNewChangeRecordEmpty(t *testing.T) {
	assert.True(t, NewChangeRecord(nil).Empty())
	assert.True(t, NewChangeRecord(Object{}).Empty())
}

func TestEntityCloneDoesNotShareAttrs(t *testing.T) {
	e := Entity{Type: "todo", ID: "1", Attrs: Object{"title": String("a")}}
	c := e.Clone()
	c.Attrs["title"] = String("b")

	assert.Equal(t, String("a"), e.Attrs["title"])
	assert.Equal(t, String("a"), e.Attr("title"))
	assert.Equal(t, Null{}, e.Attr("missing"))
}

func TestEntityHasID(t *testing.T) {
	assert.False(t, Entity{Type: "todo"}.HasID())
	assert.True(t, Entity{Type: "todo", ID: "x"}.HasID())
}
