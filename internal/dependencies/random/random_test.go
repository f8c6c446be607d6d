package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntnStaysInRange(t *testing.T) {
	src := New()
	for i := 0; i < 1000; i++ {
		v := src.Intn(13)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 13)
	}
	assert.Equal(t, 0, src.Intn(0))
	assert.Equal(t, 0, src.Intn(-4))
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a := NewSeeded(1, 2)
	b := NewSeeded(1, 2)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Intn(100), b.Intn(100))
	}
}
