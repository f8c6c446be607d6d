package random

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int
}

// Source implements Random with a PCG generator. Spawn positions and
// palette picks do not need cryptographic quality.
type Source struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// New creates a Source seeded from crypto/rand
func New() *Source {
	var seed [16]byte
	_, _ = rand.Read(seed[:])
	return NewSeeded(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}

// NewSeeded creates a deterministic Source
func NewSeeded(seed1, seed2 uint64) *Source {
	return &Source{rng: mrand.New(mrand.NewPCG(seed1, seed2))}
}

// Intn returns a random int in [0, n), or 0 when n <= 0
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
