package mocks

import (
	"sync"

	"github.com/mcoot/partyroom/internal/dependencies/random"
)

// MockRandom replays queued values from Intn
type MockRandom struct {
	mu      sync.Mutex
	results []int
	next    int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result modulo n, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.results) || n <= 0 {
		return 0
	}
	result := r.results[r.next]
	r.next++
	return result % n
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = nil
	r.next = 0
}
