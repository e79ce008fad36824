package binding

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/auth"
	"github.com/roach88/bindery/internal/hub"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
	"github.com/roach88/bindery/internal/testutil"
)

var (
	alice = auth.User{Name: "alice", Authenticated: true}
	admin = auth.User{Name: "root", Admin: true, Authenticated: true}
)

func todoSpec() *ir.ResourceSpec {
	return &ir.ResourceSpec{
		Name: "todo",
		Fields: []ir.FieldSpec{
			{Name: "done", Type: ir.FieldBool},
			{Name: "owner", Type: ir.FieldString},
			{Name: "rank", Type: ir.FieldInt},
			{Name: "title", Type: ir.FieldString, Required: true, Validate: "max=20"},
		},
		Interested:  []string{"owner"},
		Permissions: []string{"allow_any"},
	}
}

type fixture struct {
	t       *testing.T
	store   *store.Store
	hub     *hub.Hub
	binding *Binding
	conn    *testutil.FakeConn
	sess    Session
}

func newFixture(t *testing.T, spec *ir.ResourceSpec, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := hub.New()
	opts = append([]Option{WithIDs(testutil.NewSequentialIDs())}, opts...)
	b, err := New(spec, s, h, opts...)
	require.NoError(t, err)

	conn := testutil.NewFakeConn("c1")
	return &fixture{
		t:       t,
		store:   s,
		hub:     h,
		binding: b,
		conn:    conn,
		sess:    Session{Conn: conn, User: alice},
	}
}

func request(action, pk string, data ir.Object) ir.Request {
	req := ir.Request{Action: action, Data: data}
	if pk != "" {
		req.PK = json.RawMessage(strconv.Quote(pk))
	}
	return req
}

func (f *fixture) do(action, pk string, data ir.Object) ir.Reply {
	f.t.Helper()
	return f.binding.Dispatch(context.Background(), f.sess, request(action, pk, data))
}

func (f *fixture) doAs(sess Session, action, pk string, data ir.Object) ir.Reply {
	f.t.Helper()
	return f.binding.Dispatch(context.Background(), sess, request(action, pk, data))
}

func (f *fixture) create(title, owner string) string {
	f.t.Helper()
	reply := f.do(ActionCreate, "", ir.Object{"title": ir.String(title), "owner": ir.String(owner)})
	require.Equal(f.t, 201, reply.Status, "create failed: %v", reply.Errors)
	return string(reply.Data.(ir.Object)["id"].(ir.String))
}

func (f *fixture) count() int {
	f.t.Helper()
	n, err := f.store.Query("todo", store.Condition{}).Count(context.Background())
	require.NoError(f.t, err)
	return n
}

func encode(t *testing.T, r ir.Reply) string {
	t.Helper()
	b, err := r.MarshalJSON()
	require.NoError(t, err)
	return string(b)
}

func strs(frames [][]byte) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f)
	}
	return out
}

var storeAll = store.Condition{}
