package request

import "github.com/mcoot/partyroom/internal/model"

// NewGameRequest is the public body for logging a player into a room
type NewGameRequest struct {
	RoomID   model.RoomID   `json:"room_id"`
	RoomType model.RoomType `json:"room_type"`
}

// Player RPC bodies

// PlayerNewGameRequest asks the player partition to log a player in
type PlayerNewGameRequest struct {
	PlayerID model.PlayerID `json:"player_id"`
	RoomID   model.RoomID   `json:"room_id"`
	RoomType model.RoomType `json:"room_type"`
}

// PlayerEndGameRequest carries a player's final state back to the account side
type PlayerEndGameRequest struct {
	PlayerID model.PlayerID   `json:"player_id"`
	RoomID   model.RoomID     `json:"room_id,omitempty"`
	Player   model.PlayerData `json:"player"`
}

// PlayerGetRequest looks up one player record
type PlayerGetRequest struct {
	PlayerID model.PlayerID `json:"player_id"`
}

// Room RPC bodies

// RoomNewGameRequest seats a player in a room
type RoomNewGameRequest struct {
	RoomID   model.RoomID     `json:"room_id"`
	PlayerID model.PlayerID   `json:"player_id"`
	Player   model.PlayerData `json:"player"`
	RoomType model.RoomType   `json:"room_type"`
}

// RoomPlayerRequest addresses one seat of one room
type RoomPlayerRequest struct {
	RoomID   model.RoomID   `json:"room_id"`
	PlayerID model.PlayerID `json:"player_id"`
}

// RoomUpdateRequest replaces the game state of a seated player
type RoomUpdateRequest struct {
	RoomID   model.RoomID     `json:"room_id"`
	PlayerID model.PlayerID   `json:"player_id"`
	Player   model.PlayerData `json:"player"`
}

// RoomGetRequest addresses one room
type RoomGetRequest struct {
	RoomID model.RoomID `json:"room_id"`
}
