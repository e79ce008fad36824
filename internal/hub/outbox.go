package hub

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Outbox.Next once the outbox is closed and drained.
var ErrClosed = errors.New("outbox closed")

// Outbox is a thread-safe FIFO of frames waiting to be written to one
// connection.
//
// The outbox is unbounded so a routing pass never blocks on a slow client;
// the transport's write deadline is what evicts a client that stops reading.
//
// The outbox uses a channel for signaling to enable context-aware waiting
// in the write loop.
type Outbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	signal chan struct{} // Signals frame availability (buffered, size 1)
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		frames: make([][]byte, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push adds a frame to the back of the outbox.
// Thread-safe: may be called from any goroutine.
// Returns false if the outbox is closed.
func (o *Outbox) Push(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	o.frames = append(o.frames, frame)

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case o.signal <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes and returns the front frame without blocking.
func (o *Outbox) TryPop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.frames) == 0 {
		return nil, false
	}

	f := o.frames[0]
	// Release the slot so the backing array does not pin sent frames.
	o.frames[0] = nil

	if len(o.frames) == 1 {
		o.frames = o.frames[:0]
	} else {
		o.frames = o.frames[1:]
	}

	return f, true
}

// Next blocks until a frame is available, the outbox is closed and empty
// (ErrClosed), or ctx is done.
func (o *Outbox) Next(ctx context.Context) ([]byte, error) {
	for {
		if f, ok := o.TryPop(); ok {
			return f, nil
		}

		o.mu.Lock()
		done := o.closed
		o.mu.Unlock()
		if done {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.signal:
		}
	}
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

// Close signals that no more frames will be pushed.
// Queued frames can still be drained with Next.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.closed = true
	close(o.signal)
}
