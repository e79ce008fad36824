package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/store"
	"github.com/roach88/bindery/internal/testutil"
)

func TestJoinAndSendGroup(t *testing.T) {
	h := New()
	ctx := context.Background()
	a := testutil.NewFakeConn("a")
	b := testutil.NewFakeConn("b")

	h.Join(ctx, "todo-update", a)
	h.Join(ctx, "todo-update", b)
	h.Join(ctx, "todo-update", a) // duplicate join

	n := h.SendGroup(ctx, "todo-update", []byte("frame"))
	assert.Equal(t, 2, n)
	assert.Len(t, a.Frames(), 1, "a member receives a frame once")
	assert.Len(t, b.Frames(), 1)

	assert.Zero(t, h.SendGroup(ctx, "todo-delete", []byte("frame")))
}

func TestLeave(t *testing.T) {
	h := New()
	ctx := context.Background()
	a := testutil.NewFakeConn("a")

	h.Join(ctx, "todo-update-1", a)
	assert.True(t, h.HasMembers("todo-update-1"))

	h.Leave(ctx, "todo-update-1", a)
	assert.False(t, h.HasMembers("todo-update-1"))
	assert.Empty(t, h.Groups("a"))

	h.Leave(ctx, "todo-update-1", a) // not a member
}

func TestDisconnectRemovesAllGroups(t *testing.T) {
	h := New()
	ctx := context.Background()
	a := testutil.NewFakeConn("a")
	b := testutil.NewFakeConn("b")

	h.Join(ctx, "todo-create", a)
	h.Join(ctx, "todo-update-1", a)
	h.Join(ctx, "todo-create", b)
	assert.Equal(t, []string{"todo-create", "todo-update-1"}, h.Groups("a"))

	h.Disconnect(ctx, a)

	assert.Empty(t, h.Groups("a"))
	assert.False(t, h.HasMembers("todo-update-1"))
	members := h.Members("todo-create")
	require.Len(t, members, 1)
	assert.Equal(t, "b", members[0].ID())
}

func TestMembersSnapshotSorted(t *testing.T) {
	h := New()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		h.Join(ctx, "g", testutil.NewFakeConn(id))
	}

	snap := h.Members("g")
	h.Join(ctx, "g", testutil.NewFakeConn("d"))

	ids := make([]string, len(snap))
	for i, c := range snap {
		ids[i] = c.ID()
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids, "snapshot is unaffected by later joins")
}

func TestClosedConnNotCounted(t *testing.T) {
	h := New()
	ctx := context.Background()
	a := testutil.NewFakeConn("a")
	a.Close()
	h.Join(ctx, "g", a)

	assert.Zero(t, h.SendGroup(ctx, "g", []byte("x")))
}

func TestRecorderPersistsMemberships(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	h := New(WithRecorder(s))
	ctx := context.Background()
	a := testutil.NewFakeConn("a")

	h.Join(ctx, "todo-update", a)
	h.Join(ctx, "todo-update-1", a)
	h.Leave(ctx, "todo-update", a)

	subs, err := s.Subscriptions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "todo-update-1", subs[0].Group)

	h.Disconnect(ctx, a)
	subs, err = s.Subscriptions(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestConcurrentJoinSendDisconnect(t *testing.T) {
	h := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := testutil.NewFakeConn(fmt.Sprintf("conn-%d", i))
			h.Join(ctx, "todo-update", c)
			h.SendGroup(ctx, "todo-update", []byte("x"))
			h.Disconnect(ctx, c)
		}(i)
	}
	wg.Wait()

	assert.False(t, h.HasMembers("todo-update"))
}
