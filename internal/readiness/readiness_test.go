package readiness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/partyroom/internal/model"
)

func TestCheckWithoutStateIsReady(t *testing.T) {
	assert.NoError(t, Check(context.Background()))
}

func TestCheckFollowsState(t *testing.T) {
	s := NewState()
	ctx := WithState(context.Background(), s)

	assert.ErrorIs(t, Check(ctx), model.ErrNotReady)

	s.SetReady()
	assert.NoError(t, Check(ctx))

	s.SetNotReady()
	assert.ErrorIs(t, Check(ctx), model.ErrNotReady)
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := NewState()
	got, ok := FromContext(WithState(context.Background(), s))
	assert.True(t, ok)
	assert.Same(t, s, got)
}
