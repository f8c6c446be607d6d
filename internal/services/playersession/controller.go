package playersession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/partyroom/internal/dependencies/clock"
	"github.com/mcoot/partyroom/internal/dependencies/random"
	"github.com/mcoot/partyroom/internal/events"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/readiness"
	"github.com/mcoot/partyroom/internal/storage"
)

// PlayersDict is the dictionary holding one PlayerRecord per player id
const PlayersDict = "players"

// Palette is the set of colours a new player can be given
var Palette = []string{
	"ADD8E6", "99FFCC", "CCCC99", "CCCCCC", "CCCCFF", "CCFF99", "CCFFCC",
	"CCFFFF", "FFCC99", "FFCCCC", "FFCCFF", "FFFF99", "FFFFCC",
}

// RoomService is the room side of the session protocol
type RoomService interface {
	NewGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData, roomType model.RoomType) (model.RoomType, error)
	Exists(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (bool, error)
}

// NewGameResult describes a successful login
type NewGameResult struct {
	RoomID   model.RoomID     `json:"room_id"`
	RoomType model.RoomType   `json:"room_type"`
	Player   model.PlayerData `json:"player"`
}

// Controller owns the player records of the partitions this process holds
type Controller struct {
	stores    storage.Provider
	router    partition.Router
	rooms     RoomService
	publisher events.Publisher
	clock     clock.Clock
	random    random.Random
	logger    *slog.Logger
	players   storage.Dict[model.PlayerRecord]
}

// NewController creates a new player session Controller
func NewController(
	stores storage.Provider,
	router partition.Router,
	rooms RoomService,
	publisher events.Publisher,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		stores:    stores,
		router:    router,
		rooms:     rooms,
		publisher: publisher,
		clock:     clock,
		random:    random,
		logger:    logger,
		players:   storage.NewDict[model.PlayerRecord](PlayersDict),
	}
}

func (c *Controller) storeFor(playerID model.PlayerID) (storage.Store, error) {
	return c.stores.Store(c.router.Of(string(playerID)))
}

// spawn synthesizes the game state of a brand new player
func (c *Controller) spawn() model.PlayerData {
	return model.PlayerData{
		X:     c.random.Intn(100) - 6,
		Y:     c.random.Intn(96) - 6,
		Color: Palette[c.random.Intn(len(Palette))],
	}
}

// NewGame logs a player into a room.
//
// The player record is committed as LoggedIn before the room is asked to
// seat the player. A record that already says LoggedIn is checked against
// the room it names: if that room still seats the player the login is
// rejected, otherwise the earlier login never completed and this one takes
// its place. A failed room join leaves the record LoggedIn and returns a
// retryable error.
func (c *Controller) NewGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, roomType model.RoomType) (*NewGameResult, error) {
	if err := readiness.Check(ctx); err != nil {
		return nil, err
	}
	if _, err := model.ParseRoomType(string(roomType)); err != nil {
		return nil, err
	}

	store, err := c.storeFor(playerID)
	if err != nil {
		return nil, err
	}

	var data model.PlayerData
	err = storage.Update(ctx, store, func(tx storage.Tx) error {
		rec, ok, err := c.players.Get(ctx, tx, string(playerID), storage.LockUpdate)
		if err != nil {
			return err
		}

		switch {
		case !ok:
			rec = model.PlayerRecord{
				Player:     c.spawn(),
				State:      model.LoggedIn,
				NumLogins:  1,
				FirstLogin: c.clock.Now(),
				RoomID:     roomID,
			}
		case rec.State == model.LoggedOut:
			rec.State = model.LoggedIn
			rec.RoomID = roomID
			rec.NumLogins++
		default:
			seated, err := c.rooms.Exists(ctx, rec.RoomID, playerID)
			if err != nil {
				return fmt.Errorf("checking membership of room %s: %w", rec.RoomID, err)
			}
			if seated {
				return fmt.Errorf("%w: seated in room %s", model.ErrAlreadyLoggedIn, rec.RoomID)
			}
			c.logger.Info("reclaiming unfinished login",
				"player_id", playerID,
				"stale_room_id", rec.RoomID,
				"room_id", roomID,
			)
			rec.RoomID = roomID
			rec.NumLogins++
		}

		data = rec.Player
		return c.players.Set(ctx, tx, string(playerID), rec)
	})
	if err != nil {
		return nil, err
	}

	joinedType, err := c.rooms.NewGame(ctx, roomID, playerID, data, roomType)
	if err != nil {
		c.logger.Warn("room join failed after login",
			"player_id", playerID,
			"room_id", roomID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: joining room %s: %w", model.ErrTransient, roomID, err)
	}

	events.Emit(ctx, c.publisher, c.logger, events.New(events.PlayerLoggedIn, playerID, roomID, c.clock.Now()))

	return &NewGameResult{
		RoomID:   roomID,
		RoomType: joinedType,
		Player:   data,
	}, nil
}

// EndGame records a player's final state and logs them out.
//
// Ending an already logged-out player succeeds without writing. When roomID
// is set and the record has since moved to a different room, the call is a
// leftover from the old room and also succeeds without writing.
func (c *Controller) EndGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, data model.PlayerData) error {
	if err := readiness.Check(ctx); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	store, err := c.storeFor(playerID)
	if err != nil {
		return err
	}

	var loggedOut bool
	err = storage.Update(ctx, store, func(tx storage.Tx) error {
		rec, ok, err := c.players.Get(ctx, tx, string(playerID), storage.LockUpdate)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: end game for unknown player %s", model.ErrIntegrity, playerID)
		}
		if rec.State == model.LoggedOut {
			return nil
		}
		if roomID != "" && rec.RoomID != roomID {
			c.logger.Info("ignoring end game from stale room",
				"player_id", playerID,
				"room_id", roomID,
				"current_room_id", rec.RoomID,
			)
			return nil
		}

		rec.Player = data
		rec.State = model.LoggedOut
		loggedOut = true
		return c.players.Set(ctx, tx, string(playerID), rec)
	})
	if err != nil {
		if errors.Is(err, model.ErrIntegrity) {
			c.logger.Error("integrity violation", "player_id", playerID, "error", err)
		}
		return err
	}

	if loggedOut {
		events.Emit(ctx, c.publisher, c.logger, events.New(events.PlayerLoggedOut, playerID, roomID, c.clock.Now()))
	}
	return nil
}

// GetPlayer returns a player's record
func (c *Controller) GetPlayer(ctx context.Context, playerID model.PlayerID) (*model.PlayerRecord, error) {
	if err := readiness.Check(ctx); err != nil {
		return nil, err
	}

	store, err := c.storeFor(playerID)
	if err != nil {
		return nil, err
	}

	var rec model.PlayerRecord
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		var ok bool
		var err error
		rec, ok, err = c.players.Get(ctx, tx, string(playerID), storage.LockNone)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrPlayerNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetStats aggregates one partition's accounts in a single read
func (c *Controller) GetStats(ctx context.Context, p int) (model.PlayerStats, error) {
	if err := readiness.Check(ctx); err != nil {
		return model.PlayerStats{}, err
	}

	store, err := c.stores.Store(p)
	if err != nil {
		return model.PlayerStats{}, err
	}

	var stats model.PlayerStats
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		items, err := c.players.Scan(ctx, tx)
		if err != nil {
			return err
		}

		now := c.clock.Now()
		var logins, age float64
		for _, it := range items {
			stats.NumAccounts++
			if it.Value.State == model.LoggedIn {
				stats.NumLoggedIn++
			}
			logins += float64(it.Value.NumLogins)
			age += now.Sub(it.Value.FirstLogin).Seconds()
		}
		if stats.NumAccounts > 0 {
			stats.AvgNumLogins = logins / float64(stats.NumAccounts)
			stats.AvgAccountAge = age / float64(stats.NumAccounts)
		}
		return nil
	})
	return stats, err
}
