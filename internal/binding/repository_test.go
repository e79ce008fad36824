package binding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

func TestRepositoryRoutesEveryWrite(t *testing.T) {
	f := newFixture(t, todoSpec())
	ctx := context.Background()
	repo := f.binding.Repository()

	f.hub.Join(ctx, "todo-create", f.conn)
	f.hub.Join(ctx, "todo-update-x", f.conn)
	f.hub.Join(ctx, "todo-delete-alice", f.conn)

	e, res, err := repo.Create(ctx, "x", ir.Object{"title": ir.String("t"), "owner": ir.String("alice")})
	require.NoError(t, err)
	assert.Equal(t, "x", e.ID)
	assert.Positive(t, e.Seq)
	assert.Empty(t, res.Partition.Removed)
	assert.Empty(t, res.Partition.Retained)
	require.Len(t, res.Emitted, 1)
	assert.Equal(t, ir.ActionCreate, res.Emitted[0].Event)
	assert.Equal(t, []string{"todo-create"}, res.Emitted[0].Groups)

	_, res, err = repo.Update(ctx, "x", Replace(ir.Object{"title": ir.String("u"), "owner": ir.String("alice")}))
	require.NoError(t, err)
	require.Len(t, res.Emitted, 1)
	assert.Equal(t, ir.ActionUpdate, res.Emitted[0].Event)

	res, err = repo.Delete(ctx, "x")
	require.NoError(t, err)
	require.Len(t, res.Emitted, 1)
	assert.Equal(t, []string{"todo-delete-alice"}, res.Emitted[0].Groups)

	assert.Equal(t, []string{"create", "update", "delete"}, actions(f.conn))
}

func TestRepositoryMissingEntity(t *testing.T) {
	f := newFixture(t, todoSpec())
	ctx := context.Background()
	repo := f.binding.Repository()

	_, _, err := repo.Update(ctx, "ghost", Replace(ir.Object{"title": ir.String("t")}))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.Delete(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = repo.Create(ctx, "dup", ir.Object{"title": ir.String("t")})
	require.NoError(t, err)
	_, _, err = repo.Create(ctx, "dup", ir.Object{"title": ir.String("t")})
	assert.ErrorIs(t, err, store.ErrExists)
}

func TestUpdateMergesOverLatestAttributes(t *testing.T) {
	f := newFixture(t, todoSpec())
	ctx := context.Background()
	id := f.create("start", "alice")

	merging := make(chan struct{})
	release := make(chan struct{})
	slow := make(chan error, 1)
	go func() {
		_, _, err := f.binding.Repository().Update(ctx, id, func(current ir.Object) (ir.Object, error) {
			close(merging)
			<-release
			return f.binding.serializer.FromWire(ir.Object{"title": ir.String("tB")}, current)
		})
		slow <- err
	}()
	<-merging

	fast := make(chan ir.Reply, 1)
	go func() { fast <- f.do(ActionUpdate, id, ir.Object{"rank": ir.Int(7)}) }()

	select {
	case <-fast:
		t.Fatal("update ran while another update of the same entity was merging")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-slow)
	reply := <-fast
	require.Equal(t, 200, reply.Status, "update failed: %v", reply.Errors)

	e, err := f.store.Get(ctx, "todo", id)
	require.NoError(t, err)
	assert.Equal(t, ir.String("tB"), e.Attrs["title"])
	assert.Equal(t, ir.Int(7), e.Attrs["rank"])
}

func TestUpdateMergeErrorLeavesEntity(t *testing.T) {
	f := newFixture(t, todoSpec())
	ctx := context.Background()
	id := f.create("start", "alice")

	reply := f.do(ActionUpdate, id, ir.Object{"title": ir.String("this title is far too long")})
	assert.Equal(t, 400, reply.Status)

	e, err := f.store.Get(ctx, "todo", id)
	require.NoError(t, err)
	assert.Equal(t, ir.String("start"), e.Attrs["title"])
	assert.Zero(t, f.binding.Repository().locks.held())
}
