// Package hub is the in-process registry of which connections belong to
// which interest groups.
//
// Membership changes and group sends may run concurrently from any number
// of connections. SendGroup enumerates a snapshot taken under a read lock
// and enqueues outside it, so a member that leaves mid-send may still get
// the frame, and a member that joins mid-send may miss it, but nobody gets
// it twice.
package hub

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/bindery/internal/metrics"
)

// Conn is one client connection as seen by the hub.
type Conn interface {
	ID() string
	// Send queues frame for delivery. Returns false if the connection is
	// closed.
	Send(frame []byte) bool
}

// Recorder persists memberships. *store.Store satisfies it.
type Recorder interface {
	AddSubscription(ctx context.Context, group, connID string) error
	RemoveSubscription(ctx context.Context, group, connID string) error
	RemoveConnection(ctx context.Context, connID string) (int64, error)
}

// Hub tracks group memberships.
type Hub struct {
	mu       sync.RWMutex
	groups   map[string]map[string]Conn     // group -> conn id -> conn
	byConn   map[string]map[string]struct{} // conn id -> groups
	recorder Recorder
}

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder persists every membership change through r.
// Persistence is best-effort: failures are logged and the in-memory
// registry stays authoritative.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		h.recorder = r
	}
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		groups: make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds c to group. Joining twice is a no-op.
func (h *Hub) Join(ctx context.Context, group string, c Conn) {
	h.mu.Lock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]Conn)
		h.groups[group] = members
	}
	_, already := members[c.ID()]
	members[c.ID()] = c
	if h.byConn[c.ID()] == nil {
		h.byConn[c.ID()] = make(map[string]struct{})
	}
	h.byConn[c.ID()][group] = struct{}{}
	groupCount := len(h.groups)
	h.mu.Unlock()

	metrics.Groups.Set(float64(groupCount))
	if already || h.recorder == nil {
		return
	}
	if err := h.recorder.AddSubscription(ctx, group, c.ID()); err != nil {
		slog.Warn("failed to record subscription", "group", group, "conn_id", c.ID(), "error", err)
	}
}

// Leave removes c from group. Leaving a group c is not in is a no-op.
func (h *Hub) Leave(ctx context.Context, group string, c Conn) {
	h.mu.Lock()
	removed := h.removeLocked(group, c.ID())
	groupCount := len(h.groups)
	h.mu.Unlock()

	metrics.Groups.Set(float64(groupCount))
	if !removed || h.recorder == nil {
		return
	}
	if err := h.recorder.RemoveSubscription(ctx, group, c.ID()); err != nil {
		slog.Warn("failed to remove subscription", "group", group, "conn_id", c.ID(), "error", err)
	}
}

// Disconnect removes c from every group.
func (h *Hub) Disconnect(ctx context.Context, c Conn) {
	h.mu.Lock()
	for group := range h.byConn[c.ID()] {
		h.removeLocked(group, c.ID())
	}
	delete(h.byConn, c.ID())
	groupCount := len(h.groups)
	h.mu.Unlock()

	metrics.Groups.Set(float64(groupCount))
	if h.recorder == nil {
		return
	}
	if _, err := h.recorder.RemoveConnection(ctx, c.ID()); err != nil {
		slog.Warn("failed to remove connection subscriptions", "conn_id", c.ID(), "error", err)
	}
}

func (h *Hub) removeLocked(group, connID string) bool {
	members, ok := h.groups[group]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
	if gs := h.byConn[connID]; gs != nil {
		delete(gs, group)
	}
	return true
}

// Members returns a snapshot of group's connections, sorted by id.
func (h *Hub) Members(group string) []Conn {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	slices.SortFunc(members, func(a, b Conn) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return members
}

// HasMembers reports whether group currently has any member.
func (h *Hub) HasMembers(group string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group]) > 0
}

// Groups returns the groups c belongs to, sorted.
func (h *Hub) Groups(connID string) []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.byConn[connID]))
	for g := range h.byConn[connID] {
		out = append(out, g)
	}
	h.mu.RUnlock()

	slices.Sort(out)
	return out
}

// SendGroup queues frame for every current member of group and returns how
// many connections accepted it.
func (h *Hub) SendGroup(_ context.Context, group string, frame []byte) int {
	sent := 0
	for _, c := range h.Members(group) {
		if c.Send(frame) {
			sent++
		}
	}
	return sent
}
