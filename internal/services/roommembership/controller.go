package roommembership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/partyroom/internal/dependencies/clock"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/readiness"
	"github.com/mcoot/partyroom/internal/storage"
)

// RoomsDict is the dictionary holding one RoomRecord per room id
const RoomsDict = "rooms"

// ActiveDict names the dictionary of players seated in a room
func ActiveDict(roomID model.RoomID) string {
	return "active/" + string(roomID)
}

// PlayerService is the account side of the session protocol
type PlayerService interface {
	EndGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, data model.PlayerData) error
}

// Occupant is a seated player and the time of their last update
type Occupant struct {
	PlayerID    model.PlayerID `json:"player_id"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Controller owns room records and active player maps for the partitions
// this process holds. Every write to a room first takes the update lock of
// its RoomRecord, so joins and leaves of one room are serialized.
type Controller struct {
	stores  storage.Provider
	router  partition.Router
	players PlayerService
	clock   clock.Clock
	logger  *slog.Logger
	rooms   storage.Dict[model.RoomRecord]
}

// NewController creates a new room membership Controller
func NewController(
	stores storage.Provider,
	router partition.Router,
	players PlayerService,
	clock clock.Clock,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		stores:  stores,
		router:  router,
		players: players,
		clock:   clock,
		logger:  logger,
		rooms:   storage.NewDict[model.RoomRecord](RoomsDict),
	}
}

func active(roomID model.RoomID) storage.Dict[model.ActivePlayer] {
	return storage.NewDict[model.ActivePlayer](ActiveDict(roomID))
}

func (c *Controller) storeFor(roomID model.RoomID) (storage.Store, error) {
	return c.stores.Store(c.router.Of(string(roomID)))
}

// NewGame seats a player in a room, creating the room on first join, and
// returns the room's type. A room keeps the type it was created with.
// Repeating the same join overwrites the seat without counting it twice.
func (c *Controller) NewGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData, roomType model.RoomType) (model.RoomType, error) {
	if err := readiness.Check(ctx); err != nil {
		return "", err
	}
	if err := data.Validate(); err != nil {
		return "", err
	}
	if _, err := model.ParseRoomType(string(roomType)); err != nil {
		return "", err
	}

	store, err := c.storeFor(roomID)
	if err != nil {
		return "", err
	}

	seats := active(roomID)
	var stored model.RoomType
	err = storage.Update(ctx, store, func(tx storage.Tx) error {
		rec, ok, err := c.rooms.Get(ctx, tx, string(roomID), storage.LockUpdate)
		if err != nil {
			return err
		}

		if !ok {
			rec = model.RoomRecord{RoomType: roomType, NumPlayers: 1}
		} else {
			seated, err := seats.ContainsKey(ctx, tx, string(playerID))
			if err != nil {
				return err
			}
			if !seated {
				rec.NumPlayers++
			}
		}

		stored = rec.RoomType
		if err := c.rooms.Set(ctx, tx, string(roomID), rec); err != nil {
			return err
		}
		return seats.Set(ctx, tx, string(playerID), model.ActivePlayer{
			Player:      data,
			LastUpdated: c.clock.Now(),
		})
	})
	if err != nil {
		return "", err
	}
	return stored, nil
}

// Exists reports whether a player is seated in a room
func (c *Controller) Exists(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (bool, error) {
	if err := readiness.Check(ctx); err != nil {
		return false, err
	}

	store, err := c.storeFor(roomID)
	if err != nil {
		return false, err
	}

	var seated bool
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		ok, err := c.rooms.ContainsKey(ctx, tx, string(roomID))
		if err != nil || !ok {
			return err
		}
		seated, err = active(roomID).ContainsKey(ctx, tx, string(playerID))
		return err
	})
	return seated, err
}

// UpdateGame replaces a seated player's game state and refreshes their
// activity time
func (c *Controller) UpdateGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData) error {
	if err := readiness.Check(ctx); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}

	store, err := c.storeFor(roomID)
	if err != nil {
		return err
	}

	seats := active(roomID)
	return storage.Update(ctx, store, func(tx storage.Tx) error {
		ok, err := c.rooms.ContainsKey(ctx, tx, string(roomID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrRoomNotFound, roomID)
		}

		ap, ok, err := seats.Get(ctx, tx, string(playerID), storage.LockUpdate)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s in room %s", model.ErrPlayerNotFound, playerID, roomID)
		}

		ap.Player = data
		ap.LastUpdated = c.clock.Now()
		return seats.Set(ctx, tx, string(playerID), ap)
	})
}

// GetGame returns the players seated in a room, ordered by player id
func (c *Controller) GetGame(ctx context.Context, roomID model.RoomID) ([]model.PlayerEntry, error) {
	if err := readiness.Check(ctx); err != nil {
		return nil, err
	}

	store, err := c.storeFor(roomID)
	if err != nil {
		return nil, err
	}

	var entries []model.PlayerEntry
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		ok, err := c.rooms.ContainsKey(ctx, tx, string(roomID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrRoomNotFound, roomID)
		}

		items, err := active(roomID).Scan(ctx, tx)
		if err != nil {
			return err
		}
		entries = make([]model.PlayerEntry, 0, len(items))
		for _, it := range items {
			entries = append(entries, model.PlayerEntry{
				PlayerID: model.PlayerID(it.Key),
				Player:   it.Value.Player,
			})
		}
		return nil
	})
	return entries, err
}

// EndGame takes a player out of a room.
//
// The player's last state is handed to the account side first. The seat is
// only removed once that succeeds, so a failure in between leaves the player
// visibly seated and the call can be repeated.
func (c *Controller) EndGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) error {
	if err := readiness.Check(ctx); err != nil {
		return err
	}

	store, err := c.storeFor(roomID)
	if err != nil {
		return err
	}

	seats := active(roomID)

	var final model.ActivePlayer
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		ok, err := c.rooms.ContainsKey(ctx, tx, string(roomID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrRoomNotFound, roomID)
		}

		final, ok, err = seats.Get(ctx, tx, string(playerID), storage.LockNone)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s in room %s", model.ErrPlayerNotFound, playerID, roomID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := c.players.EndGame(ctx, playerID, roomID, final.Player); err != nil {
		c.logger.Warn("account side end game failed",
			"player_id", playerID,
			"room_id", roomID,
			"error", err,
		)
		return fmt.Errorf("ending session of %s: %w", playerID, err)
	}

	return storage.Update(ctx, store, func(tx storage.Tx) error {
		rec, ok, err := c.rooms.Get(ctx, tx, string(roomID), storage.LockUpdate)
		if err != nil || !ok {
			return err
		}

		removed, err := seats.Remove(ctx, tx, string(playerID))
		if err != nil || !removed {
			return err
		}

		rec.NumPlayers--
		if rec.NumPlayers <= 0 {
			_, err := c.rooms.Remove(ctx, tx, string(roomID))
			return err
		}
		return c.rooms.Set(ctx, tx, string(roomID), rec)
	})
}

// GetRooms lists the rooms of one partition, ordered by room id
func (c *Controller) GetRooms(ctx context.Context, p int) ([]model.RoomEntry, error) {
	if err := readiness.Check(ctx); err != nil {
		return nil, err
	}

	store, err := c.stores.Store(p)
	if err != nil {
		return nil, err
	}

	var rooms []model.RoomEntry
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		items, err := c.rooms.Scan(ctx, tx)
		if err != nil {
			return err
		}
		rooms = make([]model.RoomEntry, 0, len(items))
		for _, it := range items {
			rooms = append(rooms, model.RoomEntry{RoomID: model.RoomID(it.Key), Room: it.Value})
		}
		return nil
	})
	return rooms, err
}

// Occupants lists a room's seated players with their activity times in one
// read. A missing room has no occupants.
func (c *Controller) Occupants(ctx context.Context, roomID model.RoomID) ([]Occupant, error) {
	store, err := c.storeFor(roomID)
	if err != nil {
		return nil, err
	}

	var out []Occupant
	err = storage.View(ctx, store, func(tx storage.Tx) error {
		items, err := active(roomID).Scan(ctx, tx)
		if err != nil {
			return err
		}
		out = make([]Occupant, 0, len(items))
		for _, it := range items {
			out = append(out, Occupant{PlayerID: model.PlayerID(it.Key), LastUpdated: it.Value.LastUpdated})
		}
		return nil
	})
	return out, err
}
