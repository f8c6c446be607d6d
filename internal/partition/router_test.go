package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterIsDeterministic(t *testing.T) {
	a := NewRouter(8)
	b := NewRouter(8)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("player-%d", i)
		assert.Equal(t, a.Of(key), b.Of(key))
	}
}

func TestRouterStaysInRange(t *testing.T) {
	r := NewRouter(5)
	for i := 0; i < 500; i++ {
		p := r.Of(fmt.Sprintf("room-%d", i))
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 5)
	}
}

func TestRouterSpreadsKeys(t *testing.T) {
	r := NewRouter(4)
	seen := make(map[int]int)
	for i := 0; i < 1000; i++ {
		seen[r.Of(fmt.Sprintf("k%d", i))]++
	}
	assert.Len(t, seen, 4)
	for _, n := range seen {
		assert.Greater(t, n, 150)
	}
}

func TestRouterMinimumOnePartition(t *testing.T) {
	r := NewRouter(0)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 0, r.Of("anything"))
	assert.Equal(t, []int{0}, r.All())
}

func TestRouterAll(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, NewRouter(3).All())
}
