package store

import (
	"sync"
	"testing"
)

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	if got := c.Next(); got != 1 {
		t.Errorf("first Next() = %d, want 1", got)
	}
	if got := c.Next(); got != 2 {
		t.Errorf("second Next() = %d, want 2", got)
	}
	if got := c.Current(); got != 2 {
		t.Errorf("Current() = %d, want 2", got)
	}
}

func TestClock_At(t *testing.T) {
	c := NewClockAt(41)
	if got := c.Next(); got != 42 {
		t.Errorf("Next() = %d, want 42", got)
	}
}

func TestClock_ConcurrentUnique(t *testing.T) {
	c := NewClock()
	const n = 100

	var mu sync.Mutex
	seen := make(map[int64]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := c.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d unique values, want %d", len(seen), n)
	}
}
