// Package testutil provides deterministic stand-ins for tests and scenario
// runs.
package testutil

import (
	"strconv"
	"sync"
)

// SequentialIDs generates entity ids "1", "2", "3", ... in call order.
//
// This enables deterministic test execution and golden transcript
// comparison: the same scenario produces byte-identical frames.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu   sync.Mutex
	next int64
}

// NewSequentialIDs creates a generator whose first id is "1".
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Generate returns the next id.
//
// Implements binding.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return strconv.FormatInt(g.next, 10)
}

// Reset restarts the sequence. After Reset(), the next id is "1".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 0
}
