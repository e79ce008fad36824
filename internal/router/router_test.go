package router

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/group"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

type sent struct {
	group string
	frame ir.Object
}

// recordingSender treats every group in members as having one connection.
type recordingSender struct {
	members map[string]bool
	sent    []sent
}

func (s *recordingSender) HasMembers(g string) bool { return s.members[g] }

func (s *recordingSender) SendGroup(_ context.Context, g string, frame []byte) int {
	if !s.members[g] {
		return 0
	}
	v, err := ir.DecodeValue(frame)
	if err != nil {
		panic(err)
	}
	s.sent = append(s.sent, sent{group: g, frame: v.(ir.Object)})
	return 1
}

func (s *recordingSender) events() []string {
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = string(m.frame["action"].(ir.String)) + " " + m.group
	}
	return out
}

type wireFunc func(ir.Entity) (ir.Object, error)

func (f wireFunc) ToWire(e ir.Entity) (ir.Object, error) { return f(e) }

var plainWire = wireFunc(func(e ir.Entity) (ir.Object, error) {
	out := ir.Object{"id": ir.String(e.ID)}
	for k, v := range e.Attrs {
		out[k] = v
	}
	return out, nil
})

func watchAll(groups ...string) *recordingSender {
	m := make(map[string]bool, len(groups))
	for _, g := range groups {
		m[g] = true
	}
	return &recordingSender{members: m}
}

type fixture struct {
	store  *store.Store
	router *Router
	sender *recordingSender
}

func newFixture(t *testing.T, sender *recordingSender, wire Serializer) *fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	resolver := group.NewResolver("todo", group.FieldInterest([]string{"owner"}))
	r := New("todo", []string{"owner", "title"}, resolver, s, wire, sender)
	return &fixture{store: s, router: r, sender: sender}
}

func (f *fixture) create(t *testing.T, id string, attrs ir.Object) (ir.Entity, Result) {
	t.Helper()
	ctx := context.Background()
	proposed := ir.Entity{Type: "todo", ID: id, Attrs: attrs}
	p, err := f.router.Prepare(ctx, ir.ActionCreate, proposed)
	require.NoError(t, err)
	after, err := f.store.Insert(ctx, proposed)
	require.NoError(t, err)
	return after, f.router.Complete(ctx, p, after)
}

func (f *fixture) update(t *testing.T, id string, attrs ir.Object) Result {
	t.Helper()
	ctx := context.Background()
	proposed := ir.Entity{Type: "todo", ID: id, Attrs: attrs}
	p, err := f.router.Prepare(ctx, ir.ActionUpdate, proposed)
	require.NoError(t, err)
	after, err := f.store.Replace(ctx, proposed)
	require.NoError(t, err)
	return f.router.Complete(ctx, p, after)
}

func TestCreateEmitsOnlyCreations(t *testing.T) {
	sender := watchAll("todo-create", "todo-create-1", "todo-create-alice", "todo-create-1-alice")
	f := newFixture(t, sender, plainWire)

	_, res := f.create(t, "1", ir.Object{"title": ir.String("a"), "owner": ir.String("alice")})

	assert.Empty(t, res.Partition.Removed)
	assert.Empty(t, res.Partition.Retained)
	assert.Equal(t, []string{"todo-create", "todo-create-1", "todo-create-1-alice", "todo-create-alice"}, res.Partition.Added.Names())
	assert.Equal(t, []string{
		"create todo-create",
		"create todo-create-1",
		"create todo-create-1-alice",
		"create todo-create-alice",
	}, sender.events())

	payload := sender.sent[0].frame
	assert.Equal(t, ir.String("todo"), payload["stream"])
	assert.Equal(t, ir.Null{}, payload["request_id"])
	assert.Equal(t, ir.Object{"id": ir.String("1"), "owner": ir.String("alice"), "title": ir.String("a")}, payload["data"])
	assert.NotContains(t, payload, "changes")
}

func TestDeleteEmitsOnlyDeletionsWithSnapshot(t *testing.T) {
	sender := watchAll("todo-delete", "todo-delete-1-alice")
	f := newFixture(t, sender, plainWire)
	f.create(t, "1", ir.Object{"title": ir.String("a"), "owner": ir.String("alice")})
	ctx := context.Background()

	current, err := f.store.Get(ctx, "todo", "1")
	require.NoError(t, err)
	p, err := f.router.Prepare(ctx, ir.ActionDelete, current)
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(ctx, "todo", "1"))
	res := f.router.Complete(ctx, p, current)

	assert.Empty(t, res.Partition.Added)
	assert.Empty(t, res.Partition.Retained)
	assert.Equal(t, p.Old.Names(), res.Partition.Removed.Names())
	assert.Equal(t, []string{"delete todo-delete", "delete todo-delete-1-alice"}, sender.events())
	assert.Equal(t, ir.String("a"), sender.sent[0].frame["data"].(ir.Object)["title"])
	assert.Empty(t, res.Dropped)
}

func TestOwnershipChangeOrdering(t *testing.T) {
	sender := watchAll(
		"todo-update",
		"todo-update-1",
		"todo-update-alice",
		"todo-update-1-alice",
		"todo-update-bob",
		"todo-update-1-bob",
	)
	f := newFixture(t, sender, plainWire)
	f.create(t, "1", ir.Object{"title": ir.String("a"), "owner": ir.String("alice")})

	res := f.update(t, "1", ir.Object{"title": ir.String("a"), "owner": ir.String("bob")})

	assert.Equal(t, []string{
		"delete todo-update-1-alice",
		"delete todo-update-alice",
		"update todo-update",
		"update todo-update-1",
		"create todo-update-1-bob",
		"create todo-update-bob",
	}, sender.events())
	assert.Empty(t, res.Dropped)

	// Every pushed frame carries the change record.
	for _, m := range sender.sent {
		assert.Equal(t, ir.Array{ir.String("owner")}, m.frame["changes"])
		assert.Equal(t, ir.Object{"owner": ir.String("alice")}, m.frame["previous_values"])
	}
}

func TestGroupsWithoutMembersAreSkipped(t *testing.T) {
	calls := 0
	counting := wireFunc(func(e ir.Entity) (ir.Object, error) {
		calls++
		return plainWire(e)
	})
	sender := watchAll() // nobody listening
	f := newFixture(t, sender, counting)

	_, res := f.create(t, "1", ir.Object{"title": ir.String("a")})

	assert.Empty(t, sender.sent)
	assert.Empty(t, res.Emitted)
	assert.Zero(t, calls, "no serialization for zero recipients")
}

func TestEmptyPayloadSuppressed(t *testing.T) {
	empty := wireFunc(func(ir.Entity) (ir.Object, error) { return ir.Object{}, nil })
	sender := watchAll("todo-create")
	f := newFixture(t, sender, empty)

	_, res := f.create(t, "1", ir.Object{"title": ir.String("a")})

	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{ir.ActionCreate}, res.Dropped)
}

func TestUnreadableEntityDropsOnlyReloadedPartitions(t *testing.T) {
	sender := watchAll("todo-update", "todo-update-alice", "todo-update-bob")
	f := newFixture(t, sender, plainWire)
	f.create(t, "1", ir.Object{"title": ir.String("a"), "owner": ir.String("alice")})
	ctx := context.Background()

	proposed := ir.Entity{Type: "todo", ID: "1", Attrs: ir.Object{"title": ir.String("a"), "owner": ir.String("bob")}}
	p, err := f.router.Prepare(ctx, ir.ActionUpdate, proposed)
	require.NoError(t, err)
	after, err := f.store.Replace(ctx, proposed)
	require.NoError(t, err)
	// Concurrent deletion between the write and the routing pass.
	require.NoError(t, f.store.Delete(ctx, "todo", "1"))

	res := f.router.Complete(ctx, p, after)

	assert.Equal(t, []string{"delete todo-update-alice"}, sender.events())
	assert.Equal(t, []string{ir.ActionUpdate, ir.ActionCreate}, res.Dropped)
}

func TestPrepareCreateHasNoOldGroups(t *testing.T) {
	f := newFixture(t, watchAll(), plainWire)

	p, err := f.router.Prepare(context.Background(), ir.ActionCreate, ir.Entity{Type: "todo", ID: "new"})
	require.NoError(t, err)
	assert.Empty(t, p.Old)
	assert.True(t, p.Changes.Empty())
}

func TestDiffIsAPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	universe := []group.ID{
		group.Broadcast("todo", "update"),
		group.Detail("todo", "update", "1"),
		{Resource: "todo", Action: "update", User: "alice"},
		{Resource: "todo", Action: "update", User: "bob"},
		{Resource: "todo", Action: "update", Entity: "1", User: "alice"},
		{Resource: "todo", Action: "update", Entity: "1", User: "bob"},
	}
	randomSet := func() group.Set {
		s := group.Set{}
		for _, id := range universe {
			if rng.Intn(2) == 0 {
				s.Add(id)
			}
		}
		return s
	}

	for i := 0; i < 200; i++ {
		old, next := randomSet(), randomSet()
		p := Diff(old, next)

		assert.Empty(t, p.Removed.Intersect(p.Added))
		assert.Empty(t, p.Removed.Intersect(p.Retained))
		assert.Empty(t, p.Added.Intersect(p.Retained))
		assert.Equal(t, old.Union(next).Names(), p.Removed.Union(p.Retained).Union(p.Added).Names())
	}
}
