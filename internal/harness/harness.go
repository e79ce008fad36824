package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/bindery/internal/auth"
	"github.com/roach88/bindery/internal/binding"
	"github.com/roach88/bindery/internal/compiler"
	"github.com/roach88/bindery/internal/hub"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
	"github.com/roach88/bindery/internal/testutil"
)

// Harness is the test execution engine.
// It drives bindings in-process through the same demultiplexer the
// websocket transport uses, with fake connections standing in for clients.
type Harness struct {
	store   *store.Store
	demux   *binding.Demux
	clients map[string]*client
	names   []string // sorted client names
	logger  *slog.Logger
}

type client struct {
	conn *testutil.FakeConn
	sess binding.Session
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, and
// entity ids are assigned sequentially ("1", "2", ...) across all
// resources so transcripts are reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Compile resource specs and bind them
// 3. Execute setup steps
// 4. Execute flow steps, recording every frame
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	members := hub.New()
	ids := testutil.NewSequentialIDs()

	var bindings []*binding.Binding
	for _, path := range scenario.Specs {
		specs, err := compiler.CompileFile(path)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		for _, spec := range specs {
			b, err := binding.New(spec, st, members, binding.WithIDs(ids))
			if err != nil {
				return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
			}
			bindings = append(bindings, b)
		}
	}
	demux, err := binding.NewDemux(bindings...)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:   st,
		demux:   demux,
		clients: make(map[string]*client, len(scenario.Clients)),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for name, c := range scenario.Clients {
		user := auth.Anonymous()
		if c.User != "" {
			user = auth.User{Name: c.User, Admin: c.Admin, Authenticated: true}
		}
		conn := testutil.NewFakeConn(name)
		h.clients[name] = &client{conn: conn, sess: binding.Session{Conn: conn, User: user}}
		h.names = append(h.names, name)
	}
	slices.Sort(h.names)
	return h, nil
}

// executeSetup runs setup steps. Every setup step must succeed; its frames
// and any pushes it causes are discarded.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		_, reply, err := h.send(ctx, step)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if status := replyStatus(reply); status < 200 || status > 299 {
			return fmt.Errorf("setup step %d: %s failed with status %d: %s",
				i, TraceEvent{Frame: reply}.Action(), status, ir.MustMarshalCanonical(reply))
		}
		for _, name := range h.names {
			h.clients[name].conn.Drain()
		}
	}
	return nil
}

// executeFlow runs all flow steps and checks expect clauses.
//
// Each step records the request, then the reply, then every push delivered
// during the step, grouped by client in name order.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		request, reply, err := h.send(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		result.Record(KindRequest, step.Client, request)
		result.Record(KindReply, step.Client, reply)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, reply) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, TraceEvent{Frame: request}.Action(), msg))
			}
		}

		for _, name := range h.names {
			for _, frame := range h.clients[name].conn.Drain() {
				v, err := ir.DecodeValue(frame)
				if err != nil {
					return fmt.Errorf("flow step %d: undecodable push to %s: %w", i, name, err)
				}
				result.Record(KindPush, name, v)
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"client", step.Client,
			"status", replyStatus(reply),
		)
	}
	return nil
}

// send delivers one step's frame and returns the request as recorded and
// the decoded reply.
func (h *Harness) send(ctx context.Context, step Step) (ir.Value, ir.Value, error) {
	c := h.clients[step.Client]

	var frame []byte
	var request ir.Value
	if step.Raw != "" {
		frame = []byte(step.Raw)
		request = ir.String(step.Raw)
	} else {
		v, err := ir.FromAny(step.Send)
		if err != nil {
			return nil, nil, fmt.Errorf("send: %w", err)
		}
		if frame, err = ir.MarshalCanonical(v); err != nil {
			return nil, nil, fmt.Errorf("send: %w", err)
		}
		request = v
	}

	reply, err := ir.DecodeValue(h.demux.Handle(ctx, c.sess, frame))
	if err != nil {
		return nil, nil, fmt.Errorf("decode reply: %w", err)
	}
	return request, reply, nil
}

func replyStatus(reply ir.Value) int {
	obj, _ := reply.(ir.Object)
	n, _ := obj["response_status"].(ir.Int)
	return int(n)
}
