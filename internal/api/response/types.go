package response

import (
	"github.com/mcoot/partyroom/internal/model"
)

// NewGame is returned by a successful login
type NewGame struct {
	RoomID   model.RoomID     `json:"room_id"`
	RoomType model.RoomType   `json:"room_type"`
	Player   model.PlayerData `json:"player"`
}

// RoomJoined is returned when a room seats a player
type RoomJoined struct {
	RoomType model.RoomType `json:"room_type"`
}

// Exists reports whether a player is seated in a room
type Exists struct {
	Exists bool `json:"exists"`
}

// Game is a snapshot of a room's seated players
type Game struct {
	RoomID  model.RoomID        `json:"room_id"`
	Players []model.PlayerEntry `json:"players"`
}

// Rooms lists rooms with their metadata
type Rooms struct {
	Rooms []model.RoomEntry `json:"rooms"`
}

// Health describes a process
type Health struct {
	Status string `json:"status"`
	Role   string `json:"role,omitempty"`
	Node   string `json:"node,omitempty"`
}
