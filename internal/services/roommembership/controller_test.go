package roommembership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/partyroom/internal/dependencies/mocks"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/readiness"
	"github.com/mcoot/partyroom/internal/storage"
	"github.com/mcoot/partyroom/internal/testutil"
)

type endCall struct {
	player model.PlayerID
	room   model.RoomID
	data   model.PlayerData
}

type fakePlayers struct {
	mu    sync.Mutex
	calls []endCall
	err   error
}

func (f *fakePlayers) EndGame(_ context.Context, playerID model.PlayerID, roomID model.RoomID, data model.PlayerData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endCall{playerID, roomID, data})
	return f.err
}

type ControllerSuite struct {
	suite.Suite
	router     partition.Router
	host       *storage.Host
	players    *fakePlayers
	clock      *mocks.MockClock
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

var (
	red  = model.PlayerData{X: 1, Y: 2, Color: "FFCCCC"}
	blue = model.PlayerData{X: 3, Y: 4, Color: "CCCCFF"}
)

func (s *ControllerSuite) SetupTest() {
	s.router = partition.NewRouter(3)
	s.host = testutil.MemoryHost(s.T(), partition.ServiceRooms, s.router)
	s.players = &fakePlayers{}
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.controller = NewController(s.host, s.router, s.players, s.clock, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ControllerSuite) join(roomID model.RoomID, playerID model.PlayerID, data model.PlayerData, roomType model.RoomType) {
	_, err := s.controller.NewGame(s.ctx, roomID, playerID, data, roomType)
	s.Require().NoError(err)
}

func (s *ControllerSuite) room(id model.RoomID) (model.RoomRecord, bool) {
	rooms, err := s.controller.GetRooms(s.ctx, s.router.Of(string(id)))
	s.Require().NoError(err)
	for _, r := range rooms {
		if r.RoomID == id {
			return r.Room, true
		}
	}
	return model.RoomRecord{}, false
}

// NewGame tests

func (s *ControllerSuite) TestNewGameCreatesRoom() {
	s.join("r1", "alice", red, model.RoomTypeOffice)

	rec, ok := s.room("r1")
	s.True(ok)
	s.Equal(model.RoomRecord{RoomType: model.RoomTypeOffice, NumPlayers: 1}, rec)

	game, err := s.controller.GetGame(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal([]model.PlayerEntry{{PlayerID: "alice", Player: red}}, game)

	seated, err := s.controller.Exists(s.ctx, "r1", "alice")
	s.Require().NoError(err)
	s.True(seated)
}

func (s *ControllerSuite) TestNewGameIsIdempotent() {
	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.join("r1", "alice", blue, model.RoomTypeOffice)

	rec, _ := s.room("r1")
	s.Equal(1, rec.NumPlayers)

	game, err := s.controller.GetGame(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal([]model.PlayerEntry{{PlayerID: "alice", Player: blue}}, game)
}

func (s *ControllerSuite) TestNewGameKeepsOriginalRoomType() {
	roomType, err := s.controller.NewGame(s.ctx, "r1", "alice", red, model.RoomTypeOffice)
	s.Require().NoError(err)
	s.Equal(model.RoomTypeOffice, roomType)

	roomType, err = s.controller.NewGame(s.ctx, "r1", "bob", blue, model.RoomTypeCafe)
	s.Require().NoError(err)
	s.Equal(model.RoomTypeOffice, roomType)

	rec, _ := s.room("r1")
	s.Equal(model.RoomRecord{RoomType: model.RoomTypeOffice, NumPlayers: 2}, rec)
}

func (s *ControllerSuite) TestConcurrentJoinsCountEachPlayerOnce() {
	ids := []model.PlayerID{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(id model.PlayerID) {
				defer wg.Done()
				_, err := s.controller.NewGame(s.ctx, "busy", id, red, model.RoomTypeGarden)
				s.NoError(err)
			}(id)
		}
	}
	wg.Wait()

	rec, _ := s.room("busy")
	s.Equal(len(ids), rec.NumPlayers)

	game, err := s.controller.GetGame(s.ctx, "busy")
	s.Require().NoError(err)
	s.Len(game, len(ids))
}

func (s *ControllerSuite) TestNewGameValidates() {
	_, err := s.controller.NewGame(s.ctx, "r1", "alice", model.PlayerData{Color: "nope"}, model.RoomTypeOffice)
	s.ErrorIs(err, model.ErrInvalidPlayerData)
	_, err = s.controller.NewGame(s.ctx, "r1", "alice", red, "Dungeon")
	s.ErrorIs(err, model.ErrInvalidRoomType)
}

// Exists tests

func (s *ControllerSuite) TestExistsMissingRoomOrPlayer() {
	seated, err := s.controller.Exists(s.ctx, "nowhere", "alice")
	s.Require().NoError(err)
	s.False(seated)

	s.join("r1", "alice", red, model.RoomTypeOffice)
	seated, err = s.controller.Exists(s.ctx, "r1", "bob")
	s.Require().NoError(err)
	s.False(seated)
}

// UpdateGame tests

func (s *ControllerSuite) TestUpdateGameRefreshesPlayer() {
	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.clock.Advance(time.Minute)

	s.Require().NoError(s.controller.UpdateGame(s.ctx, "r1", "alice", blue))

	occupants, err := s.controller.Occupants(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal([]Occupant{{PlayerID: "alice", LastUpdated: s.clock.Now()}}, occupants)

	game, _ := s.controller.GetGame(s.ctx, "r1")
	s.Equal(blue, game[0].Player)
}

func (s *ControllerSuite) TestUpdateGameNotFound() {
	s.ErrorIs(s.controller.UpdateGame(s.ctx, "r1", "alice", red), model.ErrRoomNotFound)

	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.ErrorIs(s.controller.UpdateGame(s.ctx, "r1", "bob", red), model.ErrPlayerNotFound)
}

// GetGame tests

func (s *ControllerSuite) TestGetGameMissingRoom() {
	_, err := s.controller.GetGame(s.ctx, "nowhere")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *ControllerSuite) TestGetGameOrderedByPlayer() {
	s.join("r1", "zed", red, model.RoomTypeOffice)
	s.join("r1", "amy", blue, model.RoomTypeOffice)

	game, err := s.controller.GetGame(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal([]model.PlayerEntry{{PlayerID: "amy", Player: blue}, {PlayerID: "zed", Player: red}}, game)
}

// EndGame tests

func (s *ControllerSuite) TestEndGameForwardsStateThenRemoves() {
	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.join("r1", "bob", blue, model.RoomTypeOffice)
	s.Require().NoError(s.controller.UpdateGame(s.ctx, "r1", "alice", blue))

	s.Require().NoError(s.controller.EndGame(s.ctx, "r1", "alice"))

	s.Equal([]endCall{{"alice", "r1", blue}}, s.players.calls)

	rec, ok := s.room("r1")
	s.True(ok)
	s.Equal(1, rec.NumPlayers)

	seated, _ := s.controller.Exists(s.ctx, "r1", "alice")
	s.False(seated)
}

func (s *ControllerSuite) TestEndGameLastPlayerDeletesRoom() {
	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.Require().NoError(s.controller.EndGame(s.ctx, "r1", "alice"))

	_, ok := s.room("r1")
	s.False(ok)

	_, err := s.controller.GetGame(s.ctx, "r1")
	s.ErrorIs(err, model.ErrRoomNotFound)

	occupants, err := s.controller.Occupants(s.ctx, "r1")
	s.Require().NoError(err)
	s.Empty(occupants)
}

func (s *ControllerSuite) TestEndGameKeepsSeatWhenAccountSideFails() {
	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.players.err = model.ErrTransient

	err := s.controller.EndGame(s.ctx, "r1", "alice")
	s.ErrorIs(err, model.ErrTransient)

	seated, _ := s.controller.Exists(s.ctx, "r1", "alice")
	s.True(seated)
	rec, _ := s.room("r1")
	s.Equal(1, rec.NumPlayers)

	s.players.err = nil
	s.Require().NoError(s.controller.EndGame(s.ctx, "r1", "alice"))
	_, ok := s.room("r1")
	s.False(ok)
}

func (s *ControllerSuite) TestEndGameIntegrityErrorSurfaces() {
	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.players.err = model.ErrIntegrity

	err := s.controller.EndGame(s.ctx, "r1", "alice")
	s.ErrorIs(err, model.ErrIntegrity)
}

func (s *ControllerSuite) TestEndGameNotFound() {
	s.ErrorIs(s.controller.EndGame(s.ctx, "r1", "alice"), model.ErrRoomNotFound)

	s.join("r1", "alice", red, model.RoomTypeOffice)
	s.ErrorIs(s.controller.EndGame(s.ctx, "r1", "bob"), model.ErrPlayerNotFound)
	s.Empty(s.players.calls)
}

// GetRooms tests

func (s *ControllerSuite) TestGetRoomsAcrossPartitions() {
	ids := []model.RoomID{"r1", "r2", "r3", "r4", "r5"}
	for _, id := range ids {
		s.join(id, "alice", red, model.RoomTypeCafe)
	}

	total := 0
	for _, p := range s.router.All() {
		rooms, err := s.controller.GetRooms(s.ctx, p)
		s.Require().NoError(err)
		for _, r := range rooms {
			s.Equal(p, s.router.Of(string(r.RoomID)))
		}
		total += len(rooms)
	}
	s.Equal(len(ids), total)
}

func (s *ControllerSuite) TestNotReadyRejectsEveryOperation() {
	ctx := readiness.WithState(s.ctx, readiness.NewState())

	_, err := s.controller.NewGame(ctx, "r1", "alice", red, model.RoomTypeOffice)
	s.ErrorIs(err, model.ErrNotReady)
	_, err = s.controller.Exists(ctx, "r1", "alice")
	s.ErrorIs(err, model.ErrNotReady)
	s.ErrorIs(s.controller.UpdateGame(ctx, "r1", "alice", red), model.ErrNotReady)
	_, err = s.controller.GetGame(ctx, "r1")
	s.ErrorIs(err, model.ErrNotReady)
	s.ErrorIs(s.controller.EndGame(ctx, "r1", "alice"), model.ErrNotReady)
	_, err = s.controller.GetRooms(ctx, 0)
	s.ErrorIs(err, model.ErrNotReady)
}
