package store

import (
	"context"
	"fmt"

	"github.com/roach88/bindery/internal/ir"
)

// Insert stores a new entity and returns it stamped with its seq.
// The caller assigns e.ID. Returns ErrExists if the id is taken.
func (s *Store) Insert(ctx context.Context, e ir.Entity) (ir.Entity, error) {
	if !e.HasID() {
		return ir.Entity{}, fmt.Errorf("insert %s: missing id", e.Type)
	}
	attrsJSON, err := marshalAttrs(e.Attrs)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("insert %s/%s: %w", e.Type, e.ID, err)
	}

	seq := s.clock.Next()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (resource, id, attrs, seq, created_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(resource, id) DO NOTHING
	`, e.Type, e.ID, attrsJSON, seq, seq)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("insert %s/%s: %w", e.Type, e.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return ir.Entity{}, fmt.Errorf("insert %s/%s: %w", e.Type, e.ID, err)
	} else if n == 0 {
		return ir.Entity{}, fmt.Errorf("insert %s/%s: %w", e.Type, e.ID, ErrExists)
	}

	e = e.Clone()
	e.Seq = seq
	return e, nil
}

// Replace overwrites the attributes of an existing entity.
// Returns ErrNotFound if the entity does not exist.
func (s *Store) Replace(ctx context.Context, e ir.Entity) (ir.Entity, error) {
	attrsJSON, err := marshalAttrs(e.Attrs)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("replace %s/%s: %w", e.Type, e.ID, err)
	}

	seq := s.clock.Next()
	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET attrs = ?, seq = ?
		WHERE resource = ? AND id = ?
	`, attrsJSON, seq, e.Type, e.ID)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("replace %s/%s: %w", e.Type, e.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return ir.Entity{}, fmt.Errorf("replace %s/%s: %w", e.Type, e.ID, err)
	}

	e = e.Clone()
	e.Seq = seq
	return e, nil
}

// Delete removes an entity. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, resource, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entities WHERE resource = ? AND id = ?
	`, resource, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", resource, id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete %s/%s: %w", resource, id, err)
	}
	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
