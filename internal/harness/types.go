package harness

import "github.com/roach88/bindery/internal/ir"

// Trace event kinds.
const (
	KindRequest = "request"
	KindReply   = "reply"
	KindPush    = "push"
)

// TraceEvent is one frame crossing a client connection.
type TraceEvent struct {
	Kind   string   `json:"kind"` // request, reply or push
	Client string   `json:"client"`
	Frame  ir.Value `json:"frame"`
}

// Action returns the frame's action, or "" if it has none.
func (e TraceEvent) Action() string {
	obj, ok := e.Frame.(ir.Object)
	if !ok {
		return ""
	}
	s, _ := obj["action"].(ir.String)
	return string(s)
}

// Data returns the frame's data member.
func (e TraceEvent) Data() ir.Value {
	obj, ok := e.Frame.(ir.Object)
	if !ok {
		return ir.Null{}
	}
	if d, ok := obj["data"]; ok {
		return d
	}
	return ir.Null{}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every flow frame in the order it crossed a connection.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Record appends a frame to the trace.
func (r *Result) Record(kind, client string, frame ir.Value) {
	r.Trace = append(r.Trace, TraceEvent{Kind: kind, Client: client, Frame: frame})
}

// Pushes returns the push events delivered to client, in order.
func (r *Result) Pushes(client string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Kind == KindPush && e.Client == client {
			out = append(out, e)
		}
	}
	return out
}
