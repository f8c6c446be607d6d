package model

import (
	"fmt"
	"time"
)

// RoomID identifies a room
type RoomID string

// RoomType is fixed when a room is created
type RoomType string

const (
	RoomTypeOffice RoomType = "Office"
	RoomTypeGarden RoomType = "Garden"
	RoomTypeCafe   RoomType = "Cafe"
)

// RoomTypes lists every valid room type
var RoomTypes = []RoomType{RoomTypeOffice, RoomTypeGarden, RoomTypeCafe}

// ParseRoomType validates a room type name
func ParseRoomType(s string) (RoomType, error) {
	for _, rt := range RoomTypes {
		if string(rt) == s {
			return rt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRoomType, s)
}

// RoomRecord is the room metadata. NumPlayers always equals the size of the
// room's active player map at commit boundaries.
type RoomRecord struct {
	RoomType   RoomType `json:"room_type"`
	NumPlayers int      `json:"num_players"`
}

// ActivePlayer is a player currently seated in a room
type ActivePlayer struct {
	Player      PlayerData `json:"player"`
	LastUpdated time.Time  `json:"last_updated"` // UTC
}

// RoomEntry pairs a room id with its metadata, as returned by room listings
type RoomEntry struct {
	RoomID RoomID     `json:"room_id"`
	Room   RoomRecord `json:"room"`
}
