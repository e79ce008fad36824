package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/bindery/internal/ir"
)

// Get loads an entity by id. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, resource, id string) (ir.Entity, error) {
	return s.Lookup(ctx, resource, id, Condition{})
}

// Lookup loads an entity by id, additionally requiring cond to hold.
// An entity excluded by cond is reported as ErrNotFound.
func (s *Store) Lookup(ctx context.Context, resource, id string, cond Condition) (ir.Entity, error) {
	args := append([]any{resource, id}, cond.Args...)
	row := s.db.QueryRowContext(ctx, `
		SELECT resource, id, attrs, seq
		FROM entities
		WHERE resource = ? AND id = ?`+cond.clause(), args...)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, fmt.Errorf("get %s/%s: %w", resource, id, ErrNotFound)
	}
	if err != nil {
		return ir.Entity{}, fmt.Errorf("get %s/%s: %w", resource, id, err)
	}
	return e, nil
}

// EntityQuery is a lazily evaluated, filtered set of entities of one
// resource type. It satisfies paginate.Queryset[ir.Entity].
type EntityQuery struct {
	s        *Store
	resource string
	cond     Condition
}

// Query returns the set of entities of a resource matching cond.
func (s *Store) Query(resource string, cond Condition) *EntityQuery {
	return &EntityQuery{s: s, resource: resource, cond: cond}
}

// Count returns the number of matching entities.
func (q *EntityQuery) Count(ctx context.Context) (int, error) {
	args := append([]any{q.resource}, q.cond.Args...)
	var n int
	err := q.s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities
		WHERE resource = ?`+q.cond.clause(), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.resource, err)
	}
	return n, nil
}

// Slice returns up to limit matching entities starting at offset.
// Results are ordered deterministically: ORDER BY created_seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (q *EntityQuery) Slice(ctx context.Context, offset, limit int) ([]ir.Entity, error) {
	args := append([]any{q.resource}, q.cond.Args...)
	args = append(args, limit, offset)
	rows, err := q.s.db.QueryContext(ctx, `
		SELECT resource, id, attrs, seq
		FROM entities
		WHERE resource = ?`+q.cond.clause()+`
		ORDER BY created_seq ASC, id COLLATE BINARY ASC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.resource, err)
	}
	defer rows.Close()

	entities := []ir.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.resource, err)
	}
	return entities, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (ir.Entity, error) {
	var e ir.Entity
	var attrsJSON string
	if err := row.Scan(&e.Type, &e.ID, &attrsJSON, &e.Seq); err != nil {
		return ir.Entity{}, err
	}
	attrs, err := unmarshalAttrs(attrsJSON)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("scan %s/%s: %w", e.Type, e.ID, err)
	}
	e.Attrs = attrs
	return e, nil
}
