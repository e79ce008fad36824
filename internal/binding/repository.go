package binding

import (
	"context"
	"fmt"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/router"
	"github.com/roach88/bindery/internal/store"
)

// Repository writes entities of one resource and routes the resulting
// notifications. Every write runs the same sequence under the entity's
// lock: capture the before-image, apply the write, route the after-image.
//
// Application code that mutates entities outside of client requests should
// go through the Repository so that watchers are notified.
type Repository struct {
	resource string
	store    *store.Store
	router   *router.Router
	base     store.Condition
	locks    *keyedMutex
}

// NewRepository creates a repository. Updates only see entities matching
// base; pass the zero Condition to see all of them.
func NewRepository(resource string, st *store.Store, r *router.Router, base store.Condition) *Repository {
	return &Repository{
		resource: resource,
		store:    st,
		router:   r,
		base:     base,
		locks:    newKeyedMutex(),
	}
}

// MergeFunc computes new attributes from an entity's current ones.
type MergeFunc func(current ir.Object) (ir.Object, error)

// Replace returns a MergeFunc that ignores the current attributes.
func Replace(attrs ir.Object) MergeFunc {
	return func(ir.Object) (ir.Object, error) { return attrs, nil }
}

// Create inserts a new entity with the given id.
func (r *Repository) Create(ctx context.Context, id string, attrs ir.Object) (ir.Entity, router.Result, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	proposed := ir.Entity{Type: r.resource, ID: id, Attrs: attrs}
	p, err := r.router.Prepare(ctx, ir.ActionCreate, proposed)
	if err != nil {
		return ir.Entity{}, router.Result{}, fmt.Errorf("create %s: %w", r.resource, err)
	}

	e, err := r.store.Insert(ctx, proposed)
	if err != nil {
		return ir.Entity{}, router.Result{}, fmt.Errorf("create %s: %w", r.resource, err)
	}

	return e, r.router.Complete(ctx, p, e), nil
}

// Update loads an existing entity, applies merge to its attributes and
// persists the result. Load and merge run under the entity's lock, so a
// concurrent update never merges over stale attributes. Errors from merge
// are returned unwrapped.
// Returns store.ErrNotFound if it does not exist.
func (r *Repository) Update(ctx context.Context, id string, merge MergeFunc) (ir.Entity, router.Result, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.store.Lookup(ctx, r.resource, id, r.base)
	if err != nil {
		return ir.Entity{}, router.Result{}, fmt.Errorf("update %s: %w", r.resource, err)
	}
	attrs, err := merge(current.Attrs)
	if err != nil {
		return ir.Entity{}, router.Result{}, err
	}

	proposed := ir.Entity{Type: r.resource, ID: id, Attrs: attrs}
	p, err := r.router.Prepare(ctx, ir.ActionUpdate, proposed)
	if err != nil {
		return ir.Entity{}, router.Result{}, fmt.Errorf("update %s: %w", r.resource, err)
	}

	e, err := r.store.Replace(ctx, proposed)
	if err != nil {
		return ir.Entity{}, router.Result{}, fmt.Errorf("update %s: %w", r.resource, err)
	}

	return e, r.router.Complete(ctx, p, e), nil
}

// Delete removes an entity.
// Returns store.ErrNotFound if it does not exist.
func (r *Repository) Delete(ctx context.Context, id string) (router.Result, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	target := ir.Entity{Type: r.resource, ID: id}
	p, err := r.router.Prepare(ctx, ir.ActionDelete, target)
	if err != nil {
		return router.Result{}, fmt.Errorf("delete %s: %w", r.resource, err)
	}

	if err := r.store.Delete(ctx, r.resource, id); err != nil {
		return router.Result{}, fmt.Errorf("delete %s: %w", r.resource, err)
	}

	return r.router.Complete(ctx, p, target), nil
}
