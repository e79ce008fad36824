package binding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	counters := map[string]int{"a": 0, "b": 0}
	var mu sync.Mutex // guards map access; per-key increments are guarded by k

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()

			mu.Lock()
			v := counters[key]
			mu.Unlock()

			mu.Lock()
			counters[key] = v + 1
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counters["a"])
	assert.Equal(t, 50, counters["b"])
	assert.Zero(t, k.held(), "idle keys are released")
}
