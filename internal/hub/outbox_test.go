package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_FIFO(t *testing.T) {
	o := NewOutbox()
	for _, f := range []string{"A", "B", "C"} {
		require.True(t, o.Push([]byte(f)))
	}
	assert.Equal(t, 3, o.Len())

	for _, want := range []string{"A", "B", "C"} {
		got, ok := o.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, string(got))
	}
	_, ok := o.TryPop()
	assert.False(t, ok, "pop from empty outbox should return false")
}

func TestOutbox_NextBlocksUntilAvailable(t *testing.T) {
	o := NewOutbox()

	done := make(chan []byte)
	go func() {
		f, err := o.Next(context.Background())
		if err == nil {
			done <- f
		}
	}()

	select {
	case <-done:
		t.Fatal("Next returned before a frame was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	o.Push([]byte("late"))

	select {
	case f := <-done:
		assert.Equal(t, "late", string(f))
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after Push")
	}
}

func TestOutbox_NextHonorsContext(t *testing.T) {
	o := NewOutbox()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := o.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOutbox_CloseDrainsThenErrClosed(t *testing.T) {
	o := NewOutbox()
	o.Push([]byte("last"))
	o.Close()
	o.Close() // idempotent

	assert.False(t, o.Push([]byte("rejected")))

	f, err := o.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", string(f))

	_, err = o.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
