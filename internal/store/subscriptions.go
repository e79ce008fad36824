package store

import (
	"context"
	"fmt"

	"github.com/roach88/bindery/internal/ir"
)

// Subscription is one persisted group membership.
type Subscription struct {
	ID     string `json:"id"`
	Group  string `json:"group"`
	ConnID string `json:"conn_id"`
	Seq    int64  `json:"seq"`
}

// AddSubscription records that connID joined group.
// Uses ON CONFLICT(id) DO NOTHING - joining twice is a no-op.
func (s *Store) AddSubscription(ctx context.Context, group, connID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, group_name, conn_id, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ir.SubscriptionKey(group, connID), group, connID, s.clock.Next())
	if err != nil {
		return fmt.Errorf("add subscription %s: %w", group, err)
	}
	return nil
}

// RemoveSubscription records that connID left group. Missing rows are ignored.
func (s *Store) RemoveSubscription(ctx context.Context, group, connID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE id = ?
	`, ir.SubscriptionKey(group, connID))
	if err != nil {
		return fmt.Errorf("remove subscription %s: %w", group, err)
	}
	return nil
}

// RemoveConnection deletes every membership of connID and reports how many
// rows were removed.
func (s *Store) RemoveConnection(ctx context.Context, connID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE conn_id = ?
	`, connID)
	if err != nil {
		return 0, fmt.Errorf("remove connection %s: %w", connID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove connection %s: %w", connID, err)
	}
	return n, nil
}

// ClearSubscriptions deletes all memberships. Called at startup, since no
// connection survives a restart.
func (s *Store) ClearSubscriptions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions`)
	if err != nil {
		return 0, fmt.Errorf("clear subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear subscriptions: %w", err)
	}
	return n, nil
}

// Subscriptions returns the memberships of connID.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the connection has none.
func (s *Store) Subscriptions(ctx context.Context, connID string) ([]Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT id, group_name, conn_id, seq
		FROM subscriptions
		WHERE conn_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, connID)
}

// AllSubscriptions returns every membership, ordered by group then seq.
func (s *Store) AllSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT id, group_name, conn_id, seq
		FROM subscriptions
		ORDER BY group_name COLLATE BINARY ASC, seq ASC
	`)
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []Subscription{}
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.Group, &sub.ConnID, &sub.Seq); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// SubscriptionCount returns the number of connections recorded in group.
func (s *Store) SubscriptionCount(ctx context.Context, group string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE group_name = ?
	`, group).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subscriptions %s: %w", group, err)
	}
	return n, nil
}
