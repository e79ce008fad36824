// Package tracker captures what a mutation is about to change.
//
// Capture runs strictly before the write is applied, while the previous
// persisted state is still loadable. Its result travels next to the entity
// through the notification round and is then discarded.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

// Loader loads the persisted state of an entity. *store.Store satisfies it.
type Loader interface {
	Get(ctx context.Context, resource, id string) (ir.Entity, error)
}

// Before is the before-image of a mutation.
type Before struct {
	Entity  ir.Entity       // Persisted state; zero when Found is false
	Found   bool            // False for creates and raced deletions
	Changes ir.ChangeRecord // Empty when Found is false
}

// Capture loads the current persisted state of proposed and compares each
// declared field against the proposed value.
//
// A proposed entity without an id, or one the store reports as not found,
// yields an empty record. Any other load error is returned.
func Capture(ctx context.Context, loader Loader, proposed ir.Entity, fields []string) (Before, error) {
	if !proposed.HasID() {
		return Before{}, nil
	}

	current, err := loader.Get(ctx, proposed.Type, proposed.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Before{}, nil
	}
	if err != nil {
		return Before{}, fmt.Errorf("capture %s/%s: %w", proposed.Type, proposed.ID, err)
	}

	return Before{
		Entity:  current,
		Found:   true,
		Changes: Diff(current.Attrs, proposed.Attrs, fields),
	}, nil
}

// Diff compares the named fields of current and proposed. A field absent
// from an object is treated as null.
func Diff(current, proposed ir.Object, fields []string) ir.ChangeRecord {
	previous := ir.Object{}
	for _, f := range fields {
		was := valueOrNull(current, f)
		if !ir.Equal(was, valueOrNull(proposed, f)) {
			previous[f] = was
		}
	}
	return ir.NewChangeRecord(previous)
}

func valueOrNull(obj ir.Object, field string) ir.Value {
	if v, ok := obj[field]; ok && v != nil {
		return v
	}
	return ir.Null{}
}
