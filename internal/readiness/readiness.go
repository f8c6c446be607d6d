// Package readiness carries a process's "ready to serve" state through
// request contexts.
package readiness

import (
	"context"
	"sync/atomic"

	"github.com/mcoot/partyroom/internal/model"
)

// State is owned by the running app. It starts not ready.
type State struct {
	ready atomic.Bool
}

// NewState creates a state that reports not ready
func NewState() *State {
	return &State{}
}

func (s *State) SetReady()    { s.ready.Store(true) }
func (s *State) SetNotReady() { s.ready.Store(false) }
func (s *State) Ready() bool  { return s.ready.Load() }

type ctxKey struct{}

// WithState attaches a state to ctx
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the attached state, if any
func FromContext(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(ctxKey{}).(*State)
	return s, ok && s != nil
}

// Check returns ErrNotReady when ctx carries a state that is not ready.
// A context without a state counts as ready.
func Check(ctx context.Context) error {
	s, ok := FromContext(ctx)
	if !ok || s.Ready() {
		return nil
	}
	return model.ErrNotReady
}
