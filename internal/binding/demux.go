package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/bindery/internal/ir"
)

// Demux routes inbound frames to the binding named by their stream.
// The set of bindings is fixed at construction and read without locking.
type Demux struct {
	bindings map[string]*Binding
	names    []string
	validate *validator.Validate
}

// NewDemux creates a demultiplexer over bindings. Stream names must be
// unique.
func NewDemux(bindings ...*Binding) (*Demux, error) {
	d := &Demux{
		bindings: make(map[string]*Binding, len(bindings)),
		validate: validator.New(),
	}
	for _, b := range bindings {
		if _, dup := d.bindings[b.Name()]; dup {
			return nil, fmt.Errorf("duplicate stream %q", b.Name())
		}
		d.bindings[b.Name()] = b
		d.names = append(d.names, b.Name())
	}
	return d, nil
}

// Streams returns the stream names in registration order.
func (d *Demux) Streams() []string {
	return append([]string(nil), d.names...)
}

// Binding returns the binding for stream.
func (d *Demux) Binding(stream string) (*Binding, bool) {
	b, ok := d.bindings[stream]
	return b, ok
}

// Handle decodes frame, dispatches it, and returns the encoded reply.
func (d *Demux) Handle(ctx context.Context, sess Session, frame []byte) []byte {
	return EncodeReply(d.HandleRequest(ctx, sess, frame))
}

// HandleRequest decodes frame and dispatches it.
//
// A frame that is not a JSON object, or that has no action, gets a
// Malformed Request reply. request_id is echoed whenever it can be read.
func (d *Demux) HandleRequest(ctx context.Context, sess Session, frame []byte) ir.Reply {
	req, err := ir.DecodeRequest(frame)
	if err != nil {
		slog.Debug("malformed request", "error", err)
		return ErrorReply(salvage(frame), MalformedRequest())
	}
	if err := d.validate.Struct(req); err != nil {
		slog.Debug("malformed request", "error", err)
		return ErrorReply(req, MalformedRequest())
	}

	b, ok := d.route(req.Stream)
	if !ok {
		slog.Debug("invalid stream", "stream", req.Stream, "action", req.Action)
		return ErrorReply(req, InvalidStream())
	}
	return b.Dispatch(ctx, sess, req)
}

// route picks the binding for stream. An omitted stream is accepted when
// exactly one binding is registered.
func (d *Demux) route(stream string) (*Binding, bool) {
	if stream == "" && len(d.names) == 1 {
		return d.bindings[d.names[0]], true
	}
	b, ok := d.bindings[stream]
	return b, ok
}

// ErrorReply builds the reply to req for a request-level failure.
func ErrorReply(req ir.Request, ae *APIError) ir.Reply {
	return errorReply(ir.Reply{
		Stream:    req.Stream,
		RequestID: req.RequestID,
		Action:    req.Action,
	}, ae)
}

// Reject encodes an error reply to frame without dispatching it.
func Reject(frame []byte, ae *APIError) []byte {
	return EncodeReply(ErrorReply(salvage(frame), ae))
}

// salvage reads what it can of an undecodable frame so the error reply can
// still be correlated.
func salvage(frame []byte) ir.Request {
	var partial struct {
		Stream    json.RawMessage `json:"stream"`
		RequestID json.RawMessage `json:"request_id"`
		Action    json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(frame, &partial); err != nil {
		return ir.Request{}
	}
	req := ir.Request{RequestID: partial.RequestID}
	_ = json.Unmarshal(partial.Stream, &req.Stream)
	_ = json.Unmarshal(partial.Action, &req.Action)
	return req
}

// EncodeReply encodes a reply frame. A reply that cannot be encoded is
// replaced by an Internal Error reply, which always can.
func EncodeReply(reply ir.Reply) []byte {
	frame, err := reply.MarshalJSON()
	if err == nil {
		return frame
	}
	slog.Error("encode reply", "action", reply.Action, "error", err)
	fallback := errorReply(ir.Reply{
		Stream:    reply.Stream,
		RequestID: reply.RequestID,
		Action:    reply.Action,
	}, NewAPIError(500, DetailInternalError))
	frame, _ = fallback.MarshalJSON()
	return frame
}
