package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/partyroom/internal/dependencies/mocks"
	"github.com/mcoot/partyroom/internal/events"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/services/playersession"
	"github.com/mcoot/partyroom/internal/services/roommembership"
	"github.com/mcoot/partyroom/internal/storage"
	"github.com/mcoot/partyroom/internal/testutil"
)

type roomsRef struct {
	*roommembership.Controller
}

type WorkerSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	roomHost *storage.Host
	players  *playersession.Controller
	rooms    *roommembership.Controller
	worker   *Worker
	ctx      context.Context
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := testutil.NopLogger()

	playerRouter := partition.NewRouter(2)
	roomRouter := partition.NewRouter(3)
	playerHost := testutil.MemoryHost(s.T(), partition.ServicePlayers, playerRouter)
	s.roomHost = testutil.MemoryHost(s.T(), partition.ServiceRooms, roomRouter)

	ref := &roomsRef{}
	s.players = playersession.NewController(playerHost, playerRouter, ref, events.NopPublisher{}, s.clock, mocks.NewMockRandom(), logger)
	s.rooms = roommembership.NewController(s.roomHost, roomRouter, s.players, s.clock, logger)
	ref.Controller = s.rooms

	s.worker = NewWorker(s.rooms, s.roomHost, events.NopPublisher{}, s.clock, DefaultConfig(), logger)
}

func (s *WorkerSuite) login(player model.PlayerID, room model.RoomID) {
	_, err := s.players.NewGame(s.ctx, player, room, model.RoomTypeOffice)
	s.Require().NoError(err)
}

func (s *WorkerSuite) state(player model.PlayerID) model.LogState {
	rec, err := s.players.GetPlayer(s.ctx, player)
	s.Require().NoError(err)
	return rec.State
}

func (s *WorkerSuite) TestEvictsOnlyStalePlayers() {
	s.login("alice", "r1")
	s.clock.Advance(200 * time.Second)
	s.login("bob", "r1")
	s.clock.Advance(101 * time.Second)

	res := s.worker.SweepOnce(s.ctx)
	s.Equal(Result{Rooms: 1, Evicted: 1}, res)

	s.Equal(model.LoggedOut, s.state("alice"))
	s.Equal(model.LoggedIn, s.state("bob"))

	game, err := s.rooms.GetGame(s.ctx, "r1")
	s.Require().NoError(err)
	s.Len(game, 1)
	s.Equal(model.PlayerID("bob"), game[0].PlayerID)
}

func (s *WorkerSuite) TestExactlyThresholdIsNotStale() {
	s.login("alice", "r1")
	s.clock.Advance(300 * time.Second)

	res := s.worker.SweepOnce(s.ctx)
	s.Equal(0, res.Evicted)
	s.Equal(model.LoggedIn, s.state("alice"))
}

func (s *WorkerSuite) TestLastEvictionDeletesRoom() {
	s.login("alice", "r1")
	s.login("bob", "r2")
	s.clock.Advance(301 * time.Second)

	res := s.worker.SweepOnce(s.ctx)
	s.Equal(Result{Rooms: 2, Evicted: 2}, res)

	for _, p := range s.roomHost.Partitions() {
		rooms, err := s.rooms.GetRooms(s.ctx, p)
		s.Require().NoError(err)
		s.Empty(rooms)
	}
}

func (s *WorkerSuite) TestUpdateKeepsPlayerSeated() {
	s.login("alice", "r1")
	s.clock.Advance(250 * time.Second)
	s.Require().NoError(s.rooms.UpdateGame(s.ctx, "r1", "alice", model.PlayerData{X: 5, Color: "ADD8E6"}))
	s.clock.Advance(100 * time.Second)

	s.Equal(0, s.worker.SweepOnce(s.ctx).Evicted)
	s.Equal(model.LoggedIn, s.state("alice"))
}

func (s *WorkerSuite) TestOnlyOwnedPartitionsAreSwept() {
	s.login("alice", "r1")
	s.clock.Advance(time.Hour)

	for _, p := range s.roomHost.Partitions() {
		s.Require().NoError(s.roomHost.Release(s.ctx, p))
	}

	s.Equal(Result{}, s.worker.SweepOnce(s.ctx))
}

func (s *WorkerSuite) TestStartStop() {
	s.login("alice", "r1")
	s.clock.Advance(time.Hour)

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	w := NewWorker(s.rooms, s.roomHost, events.NopPublisher{}, s.clock, cfg, testutil.NopLogger())

	w.Start(s.ctx)
	w.Start(s.ctx)
	s.Eventually(func() bool {
		rec, err := s.players.GetPlayer(s.ctx, "alice")
		return err == nil && rec.State == model.LoggedOut
	}, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	w.Stop()
}

func (s *WorkerSuite) TestRestartAfterStop() {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	w := NewWorker(s.rooms, s.roomHost, events.NopPublisher{}, s.clock, cfg, testutil.NopLogger())

	w.Start(s.ctx)
	w.Stop()

	s.login("alice", "r1")
	s.clock.Advance(time.Hour)

	w.Start(s.ctx)
	s.Eventually(func() bool {
		rec, err := s.players.GetPlayer(s.ctx, "alice")
		return err == nil && rec.State == model.LoggedOut
	}, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	s.NotPanics(w.Stop)
}

// flakyRooms fails eviction of one player and lists a fixed set of rooms
type flakyRooms struct {
	occupants map[model.RoomID][]roommembership.Occupant
	failFor   model.PlayerID
	ended     []model.PlayerID
}

func (f *flakyRooms) GetRooms(context.Context, int) ([]model.RoomEntry, error) {
	var out []model.RoomEntry
	for id := range f.occupants {
		out = append(out, model.RoomEntry{RoomID: id})
	}
	return out, nil
}

func (f *flakyRooms) Occupants(_ context.Context, roomID model.RoomID) ([]roommembership.Occupant, error) {
	if roomID == "broken" {
		return nil, model.ErrTransient
	}
	return f.occupants[roomID], nil
}

func (f *flakyRooms) EndGame(_ context.Context, _ model.RoomID, playerID model.PlayerID) error {
	if playerID == f.failFor {
		return errors.New("boom")
	}
	f.ended = append(f.ended, playerID)
	return nil
}

type onePartition struct{}

func (onePartition) Partitions() []int { return []int{0} }

func (s *WorkerSuite) TestFailuresDoNotAbortPass() {
	old := s.clock.Now().Add(-time.Hour)
	rooms := &flakyRooms{
		occupants: map[model.RoomID][]roommembership.Occupant{
			"r1":     {{PlayerID: "a", LastUpdated: old}, {PlayerID: "b", LastUpdated: old}, {PlayerID: "c", LastUpdated: old}},
			"broken": nil,
		},
		failFor: "b",
	}

	w := NewWorker(rooms, onePartition{}, events.NopPublisher{}, s.clock, DefaultConfig(), testutil.NopLogger())
	res := w.SweepOnce(s.ctx)

	s.Equal(Result{Rooms: 2, Evicted: 2, Failed: 2}, res)
	s.Equal([]model.PlayerID{"a", "c"}, rooms.ended)
}
