// Package router turns a persisted mutation into pushed notifications.
//
// A mutation is routed in two halves around the write:
//
//	p, err := r.Prepare(ctx, action, proposed) // before the write
//	... apply the write ...
//	r.Complete(ctx, p, after)                  // after the write is durable
//
// Complete diffs the old and new group sets and emits, in this order,
// a delete event to groups the entity left, an update event to groups it
// stayed in, and a create event to groups it joined.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/bindery/internal/group"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/metrics"
	"github.com/roach88/bindery/internal/tracker"
)

// Sender delivers frames to the connections of a group.
type Sender interface {
	// HasMembers reports whether anyone is in group right now.
	HasMembers(group string) bool
	// SendGroup delivers frame to every current member and returns how
	// many connections it was queued for.
	SendGroup(ctx context.Context, group string, frame []byte) int
}

// Serializer converts an entity to its wire representation.
type Serializer interface {
	ToWire(e ir.Entity) (ir.Object, error)
}

// Partition splits the union of old and new group sets into three disjoint
// parts.
type Partition struct {
	Removed  group.Set // old - new
	Retained group.Set // old ∩ new
	Added    group.Set // new - old
}

// Diff partitions the old and next group sets.
func Diff(old, next group.Set) Partition {
	return Partition{
		Removed:  old.Minus(next),
		Retained: old.Intersect(next),
		Added:    next.Minus(old),
	}
}

// Pending is the before-image of one mutation, produced by Prepare and
// consumed by Complete.
type Pending struct {
	Action  string
	Before  ir.Entity
	Changes ir.ChangeRecord
	Old     group.Set
}

// Emission records one event sent for one partition.
type Emission struct {
	Event     string   // create, update or delete
	Groups    []string // groups with members, sorted
	Delivered int      // connections the frame was queued for
}

// Result summarizes a completed routing pass.
type Result struct {
	Partition Partition
	Emitted   []Emission
	Dropped   []string // events whose partition was dropped
}

// Router routes mutations of one resource type.
type Router struct {
	resource   string
	fields     []string
	resolver   *group.Resolver
	loader     tracker.Loader
	serializer Serializer
	sender     Sender
}

// New creates a router.
func New(resource string, fields []string, resolver *group.Resolver, loader tracker.Loader, serializer Serializer, sender Sender) *Router {
	return &Router{
		resource:   resource,
		fields:     fields,
		resolver:   resolver,
		loader:     loader,
		serializer: serializer,
		sender:     sender,
	}
}

// Prepare captures the before-image of a mutation. It must run while the
// previous state is still persisted, and the caller must hold the entity's
// mutation lock until Complete returns.
func (r *Router) Prepare(ctx context.Context, action string, proposed ir.Entity) (*Pending, error) {
	before, err := tracker.Capture(ctx, r.loader, proposed, r.fields)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", action, err)
	}

	old := group.Set{}
	if before.Found {
		old = r.resolver.PreMutation(ctx, before.Entity, action)
	}
	if action == ir.ActionDelete {
		// A delete proposes no attributes; there is nothing to diff.
		before.Changes = ir.ChangeRecord{}
	}

	return &Pending{
		Action:  action,
		Before:  before.Entity,
		Changes: before.Changes,
		Old:     old,
	}, nil
}

// Complete emits the notifications for a mutation that has been durably
// applied. after is the written entity; for deletes it is ignored.
//
// Complete never fails: a partition whose payload cannot be built is
// dropped and logged, and the remaining partitions still go out.
func (r *Router) Complete(ctx context.Context, p *Pending, after ir.Entity) Result {
	next := r.resolver.PostMutation(ctx, after, p.Action)
	part := Diff(p.Old, next)
	res := Result{Partition: part}

	// Deletions describe an entity the receiver no longer sees, so they use
	// the in-memory snapshot instead of a fresh read.
	deleted := after
	if p.Action == ir.ActionDelete {
		deleted = p.Before
	}

	steps := []struct {
		event  string
		groups group.Set
		reload bool
		entity ir.Entity
	}{
		{ir.ActionDelete, part.Removed, false, deleted},
		{ir.ActionUpdate, part.Retained, true, after},
		{ir.ActionCreate, part.Added, true, after},
	}

	for _, step := range steps {
		targets := r.audience(step.groups)
		if len(targets) == 0 {
			continue
		}

		frame, reason, err := r.frame(ctx, step.event, step.entity, step.reload, p.Changes)
		if err != nil || frame == nil {
			metrics.DroppedPartitions.WithLabelValues(r.resource, step.event, reason).Inc()
			slog.Warn("dropping notification partition",
				"resource", r.resource,
				"event", step.event,
				"id", step.entity.ID,
				"groups", len(targets),
				"reason", reason,
				"error", err,
			)
			res.Dropped = append(res.Dropped, step.event)
			continue
		}

		delivered := 0
		for _, g := range targets {
			delivered += r.sender.SendGroup(ctx, g, frame)
		}
		metrics.Notifications.WithLabelValues(r.resource, step.event).Add(float64(delivered))
		res.Emitted = append(res.Emitted, Emission{Event: step.event, Groups: targets, Delivered: delivered})
	}

	return res
}

// audience returns the groups of set that currently have members.
func (r *Router) audience(set group.Set) []string {
	var out []string
	for _, name := range set.Names() {
		if r.sender.HasMembers(name) {
			out = append(out, name)
		}
	}
	return out
}

// frame builds the pushed frame for one event. A nil frame with a nil error
// means the payload was empty and the event is suppressed.
func (r *Router) frame(ctx context.Context, event string, e ir.Entity, reload bool, changes ir.ChangeRecord) ([]byte, string, error) {
	if reload {
		fresh, err := r.loader.Get(ctx, e.Type, e.ID)
		if err != nil {
			return nil, "unreadable", err
		}
		e = fresh
	}

	payload, err := r.serializer.ToWire(e)
	if err != nil {
		return nil, "serialize", err
	}
	if len(payload) == 0 {
		return nil, "empty", nil
	}

	reply := ir.Reply{
		Stream: r.resource,
		Action: event,
		Status: 200,
		Data:   payload,
	}.WithChanges(changes)

	frame, err := reply.MarshalJSON()
	if err != nil {
		return nil, "serialize", err
	}
	return frame, "", nil
}
