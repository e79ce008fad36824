package binding

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/bindery/internal/ir"
)

// Scope says whether an action targets one entity or the collection.
type Scope int

const (
	// Detail actions require a target id.
	Detail Scope = iota
	// Collection actions take no target id.
	Collection
)

func (s Scope) String() string {
	if s == Collection {
		return "collection"
	}
	return "detail"
}

// Call is the input of one action invocation.
type Call struct {
	Session Session
	ID      string    // Empty for collection actions
	Data    ir.Object // Nil when the request carried no data
}

// Action is one named operation a binding can run.
type Action interface {
	Name() string
	Scope() Scope
	// Handle runs the action and returns the reply data and status.
	Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error)
}

// ActionDescriptor is an action as registered in a Table.
type ActionDescriptor struct {
	Name               string
	Scope              Scope
	RequiresPermission bool
	Action             Action
}

// Table maps action names to descriptors. It is immutable once built and
// safe for concurrent reads.
type Table struct {
	actions map[string]ActionDescriptor
	names   []string
}

// Lookup returns the descriptor registered under name.
func (t *Table) Lookup(name string) (ActionDescriptor, bool) {
	d, ok := t.actions[name]
	return d, ok
}

// Names returns the registered action names, sorted.
func (t *Table) Names() []string {
	return slices.Clone(t.names)
}

// Builder assembles a Table.
//
// Example:
//
//	table, err := NewBuilder().
//		Add(Retrieve{}).
//		Add(List{}).
//		Build()
type Builder struct {
	descs []ActionDescriptor
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add registers a permission-gated action.
func (b *Builder) Add(a Action) *Builder {
	b.descs = append(b.descs, ActionDescriptor{
		Name:               a.Name(),
		Scope:              a.Scope(),
		RequiresPermission: true,
		Action:             a,
	})
	return b
}

// AddPublic registers an action that skips the permission chain.
func (b *Builder) AddPublic(a Action) *Builder {
	b.descs = append(b.descs, ActionDescriptor{
		Name:   a.Name(),
		Scope:  a.Scope(),
		Action: a,
	})
	return b
}

// Build validates the registrations and returns the table.
// Duplicate or empty names are rejected.
func (b *Builder) Build() (*Table, error) {
	t := &Table{actions: make(map[string]ActionDescriptor, len(b.descs))}
	for _, d := range b.descs {
		if d.Name == "" {
			return nil, fmt.Errorf("action with empty name")
		}
		if _, dup := t.actions[d.Name]; dup {
			return nil, fmt.Errorf("duplicate action %q", d.Name)
		}
		t.actions[d.Name] = d
		t.names = append(t.names, d.Name)
	}
	slices.Sort(t.names)
	return t, nil
}

// Capabilities returns the standard actions for a resource. Read-only
// resources get no mutating actions.
func Capabilities(readOnly bool) []Action {
	actions := []Action{
		Retrieve{},
		List{},
		Subscribe{},
		SubscribeAll{},
		SubscribeMine{},
		Unsubscribe{},
	}
	if readOnly {
		return actions
	}
	return append(actions, Create{}, Update{}, Delete{})
}
