package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/partyroom/internal/dependencies/clock"
	"github.com/mcoot/partyroom/internal/events"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/services/roommembership"
)

// Config controls how often rooms are swept and how long a seated player
// may go without an update
type Config struct {
	Interval  time.Duration
	Threshold time.Duration
}

// DefaultConfig returns the standard sweep settings
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Second,
		Threshold: 300 * time.Second,
	}
}

// Rooms is the part of the room membership controller the sweep drives
type Rooms interface {
	GetRooms(ctx context.Context, partition int) ([]model.RoomEntry, error)
	Occupants(ctx context.Context, roomID model.RoomID) ([]roommembership.Occupant, error)
	EndGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) error
}

// Partitions lists the room partitions this process owns
type Partitions interface {
	Partitions() []int
}

// Result summarises one sweep pass
type Result struct {
	Rooms   int
	Evicted int
	Failed  int
}

// Worker periodically evicts inactive players through the normal room
// EndGame path
type Worker struct {
	rooms      Rooms
	partitions Partitions
	publisher  events.Publisher
	clock      clock.Clock
	cfg        Config
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewWorker creates a new sweep worker
func NewWorker(
	rooms Rooms,
	partitions Partitions,
	publisher events.Publisher,
	clock clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		rooms:      rooms,
		partitions: partitions,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start begins the background sweep loop
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stop, done
	w.mu.Unlock()

	w.logger.Info("sweep worker started", "interval", w.cfg.Interval, "threshold", w.cfg.Threshold)

	go w.run(ctx, stop, done)
}

// Stop stops the loop and waits for an in-flight pass to finish
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stop)
	<-done

	w.logger.Info("sweep worker stopped")
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce evicts every player in an owned room whose last update is older
// than the threshold. Staleness is decided outside any transaction; EndGame
// re-reads the seat itself. Failures are logged and never stop the pass.
func (w *Worker) SweepOnce(ctx context.Context) Result {
	var res Result
	start := w.clock.Now()

	for _, p := range w.partitions.Partitions() {
		rooms, err := w.rooms.GetRooms(ctx, p)
		if err != nil {
			w.logger.Error("failed to list rooms for sweep", "partition", p, "error", err)
			continue
		}

		for _, room := range rooms {
			res.Rooms++
			w.sweepRoom(ctx, room.RoomID, &res)
		}
	}

	if res.Evicted > 0 || res.Failed > 0 {
		w.logger.Info("sweep completed",
			"rooms", res.Rooms,
			"evicted", res.Evicted,
			"failed", res.Failed,
			"duration", w.clock.Now().Sub(start),
		)
	}
	return res
}

func (w *Worker) sweepRoom(ctx context.Context, roomID model.RoomID, res *Result) {
	occupants, err := w.rooms.Occupants(ctx, roomID)
	if err != nil {
		w.logger.Error("failed to list room occupants", "room_id", roomID, "error", err)
		res.Failed++
		return
	}

	now := w.clock.Now()
	for _, o := range occupants {
		if now.Sub(o.LastUpdated) <= w.cfg.Threshold {
			continue
		}

		if err := w.rooms.EndGame(ctx, roomID, o.PlayerID); err != nil {
			w.logger.Error("failed to evict inactive player",
				"room_id", roomID,
				"player_id", o.PlayerID,
				"error", err,
			)
			res.Failed++
			continue
		}

		res.Evicted++
		w.logger.Info("evicted inactive player",
			"room_id", roomID,
			"player_id", o.PlayerID,
			"idle", now.Sub(o.LastUpdated),
		)
		events.Emit(ctx, w.publisher, w.logger, events.New(events.PlayerEvicted, o.PlayerID, roomID, now))
	}
}
