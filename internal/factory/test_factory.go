package factory

import (
	"context"
	"time"

	"github.com/mcoot/partyroom/internal/config"
	"github.com/mcoot/partyroom/internal/dependencies/mocks"
	"github.com/mcoot/partyroom/internal/events"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/storage"
	"github.com/mcoot/partyroom/internal/storage/memory"
	"github.com/mcoot/partyroom/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates a single-process App on in-memory stores with mocked
// dependencies. Every partition is owned and the process is ready; the
// sweep is built but not started, so tests drive it with SweepOnce.
func NewTestApp() *TestApp {
	cfg := config.Default()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	deps := Dependencies{
		Clock:     mockClock,
		Random:    mockRandom,
		Publisher: events.NopPublisher{},
		Opener: func(partition.Service) storage.Opener {
			return func(context.Context, int) (storage.Store, error) {
				store, err := memory.New(memory.Options{})
				if err != nil {
					return nil, err
				}
				return store, nil
			}
		},
		Resolver: partition.NewStaticResolver(nil),
	}

	app := newWithDependencies(cfg, "test-node", deps, testutil.NopLogger())

	ctx := context.Background()
	for _, p := range app.PlayerRouter.All() {
		if err := app.PlayerHost.Acquire(ctx, p); err != nil {
			panic(err)
		}
	}
	for _, p := range app.RoomRouter.All() {
		if err := app.RoomHost.Acquire(ctx, p); err != nil {
			panic(err)
		}
	}
	app.Readiness.SetReady()

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
