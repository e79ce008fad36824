package binding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindery/internal/ir"
)

func newDemux(t *testing.T, f *fixture, extra ...*Binding) *Demux {
	t.Helper()
	d, err := NewDemux(append([]*Binding{f.binding}, extra...)...)
	require.NoError(t, err)
	return d
}

func noteBinding(t *testing.T, f *fixture) *Binding {
	t.Helper()
	spec := &ir.ResourceSpec{
		Name:        "note",
		Fields:      []ir.FieldSpec{{Name: "body", Type: ir.FieldString}},
		Permissions: []string{"allow_any"},
	}
	b, err := New(spec, f.store, f.hub)
	require.NoError(t, err)
	return b
}

func TestDemuxMalformed(t *testing.T) {
	f := newFixture(t, todoSpec())
	d := newDemux(t, f)
	ctx := context.Background()

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{
			"not json",
			`{nope`,
			`{"action":"","data":null,"errors":["Malformed Request"],"request_id":null,"response_status":400}`,
		},
		{
			"missing action",
			`{"request_id":"r1"}`,
			`{"action":"","data":null,"errors":["Malformed Request"],"request_id":"r1","response_status":400}`,
		},
		{
			"float in data",
			`{"request_id":7,"action":"create","data":{"rank":1.5}}`,
			`{"action":"create","data":null,"errors":["Malformed Request"],"request_id":7,"response_status":400}`,
		},
		{
			"array frame",
			`[1,2]`,
			`{"action":"","data":null,"errors":["Malformed Request"],"request_id":null,"response_status":400}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := d.Handle(ctx, f.sess, []byte(tt.frame))
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestDemuxStreams(t *testing.T) {
	f := newFixture(t, todoSpec())
	ctx := context.Background()

	single := newDemux(t, f)
	reply := single.HandleRequest(ctx, f.sess, []byte(`{"action":"list"}`))
	assert.Equal(t, 200, reply.Status, "lone binding serves an omitted stream")

	multi := newDemux(t, f, noteBinding(t, f))
	assert.Equal(t, []string{"todo", "note"}, multi.Streams())

	reply = multi.HandleRequest(ctx, f.sess, []byte(`{"action":"list"}`))
	assert.Equal(t, 400, reply.Status)
	assert.Equal(t, []ir.Value{ir.String("Invalid Stream")}, reply.Errors)

	reply = multi.HandleRequest(ctx, f.sess, []byte(`{"stream":"nope","action":"list","request_id":1}`))
	assert.Equal(t, 400, reply.Status)
	assert.Equal(t, "nope", reply.Stream)

	out := multi.Handle(ctx, f.sess, []byte(`{"stream":"note","action":"create","data":{"body":"hi"},"request_id":"x"}`))
	assert.Equal(t,
		`{"action":"create","data":{"body":"hi","id":"`+firstID(t, f, "note")+`"},"errors":[],"request_id":"x","response_status":201,"stream":"note"}`,
		string(out))
}

func TestDemuxDuplicateStream(t *testing.T) {
	f := newFixture(t, todoSpec())
	_, err := NewDemux(f.binding, f.binding)
	assert.ErrorContains(t, err, "duplicate stream")
}

func firstID(t *testing.T, f *fixture, resource string) string {
	t.Helper()
	items, err := f.store.Query(resource, storeAll).Slice(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0].ID
}

func TestReject(t *testing.T) {
	out := Reject([]byte(`{"stream":"todo","action":"list","request_id":[1]}`), RateLimited())
	assert.Equal(t,
		`{"action":"list","data":null,"errors":["Rate Limited"],"request_id":[1],"response_status":429,"stream":"todo"}`,
		string(out))
}
