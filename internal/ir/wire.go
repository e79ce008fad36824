package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Request is one inbound client message.
type Request struct {
	Stream    string          `json:"stream,omitempty"`     // Selects the resource binding
	RequestID json.RawMessage `json:"request_id,omitempty"` // Opaque, echoed byte-for-byte
	Action    string          `json:"action" validate:"required"`
	PK        json.RawMessage `json:"pk,omitempty"` // String or integer id
	Data      Object          `json:"data,omitempty"`
}

// DecodeRequest parses a text frame into a Request.
func DecodeRequest(frame []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// TargetID normalizes pk to a string id. Absent and null pk yield "".
func (r Request) TargetID() (string, error) {
	if len(r.PK) == 0 {
		return "", nil
	}
	v, err := DecodeValue(r.PK)
	if err != nil {
		return "", fmt.Errorf("pk: %w", err)
	}
	switch id := v.(type) {
	case Null:
		return "", nil
	case String:
		return string(id), nil
	case Int:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", fmt.Errorf("pk: expected string or integer, got %s", KindOf(v))
	}
}

// Reply is one outbound message: either the reply to a Request or a pushed
// notification (RequestID nil).
type Reply struct {
	Stream         string
	RequestID      json.RawMessage
	Action         string
	Status         int
	Data           Value   // nil encodes as null
	Errors         []Value // nil encodes as []
	Changes        []string
	PreviousValues Object
}

// MarshalJSON encodes the reply with keys in canonical order. request_id is
// written verbatim; changes and previous_values appear only when non-empty.
func (r Reply) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		b, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		buf.Write(b)
		return nil
	}

	if err := write("action", String(r.Action)); err != nil {
		return nil, err
	}
	if len(r.Changes) > 0 {
		changes := make(Array, len(r.Changes))
		for i, c := range r.Changes {
			changes[i] = String(c)
		}
		if err := write("changes", changes); err != nil {
			return nil, err
		}
	}
	if err := write("data", r.Data); err != nil {
		return nil, err
	}
	errs := Array(r.Errors)
	if errs == nil {
		errs = Array{}
	}
	if err := write("errors", errs); err != nil {
		return nil, err
	}
	if len(r.PreviousValues) > 0 {
		if err := write("previous_values", r.PreviousValues); err != nil {
			return nil, err
		}
	}

	buf.WriteString(`,"request_id":`)
	if len(r.RequestID) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(r.RequestID)
	}

	if err := write("response_status", Int(r.Status)); err != nil {
		return nil, err
	}
	if r.Stream != "" {
		if err := write("stream", String(r.Stream)); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WithChanges attaches a non-empty change record to the reply.
func (r Reply) WithChanges(c ChangeRecord) Reply {
	if c.Empty() {
		return r
	}
	r.Changes = c.Changed
	r.PreviousValues = c.Previous
	return r
}
