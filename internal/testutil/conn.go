package testutil

import (
	"encoding/json"
	"sync"
)

// FakeConn is an in-memory connection that records every frame sent to it.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

// NewFakeConn creates an open fake connection.
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

// ID implements hub.Conn.
func (c *FakeConn) ID() string {
	return c.id
}

// Send implements hub.Conn. Frames sent after Close are rejected.
func (c *FakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return true
}

// Close makes later sends fail.
func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Frames returns a copy of every frame received so far.
func (c *FakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

// Drain returns and forgets every frame received so far.
func (c *FakeConn) Drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

// Decoded returns every received frame decoded as a JSON object.
// Frames that are not objects decode to nil.
func (c *FakeConn) Decoded() []map[string]any {
	frames := c.Frames()
	out := make([]map[string]any, len(frames))
	for i, f := range frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out[i] = m
		}
	}
	return out
}
