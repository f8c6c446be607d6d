package rpc

import (
	"context"

	"github.com/mcoot/partyroom/internal/api/request"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
)

// RoomClient calls the room membership service
type RoomClient struct {
	client *Client
}

// NewRoomClient creates a new RoomClient
func NewRoomClient(client *Client) *RoomClient {
	return &RoomClient{client: client}
}

// NewGame seats a player in a room and returns the room's type
func (c *RoomClient) NewGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData, roomType model.RoomType) (model.RoomType, error) {
	var out response.RoomJoined
	err := c.client.Call(ctx, partition.ServiceRooms, "newgame", string(roomID), request.RoomNewGameRequest{
		RoomID:   roomID,
		PlayerID: playerID,
		Player:   data,
		RoomType: roomType,
	}, &out)
	return out.RoomType, err
}

// Exists reports whether a player is seated in a room
func (c *RoomClient) Exists(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (bool, error) {
	var out response.Exists
	err := c.client.Call(ctx, partition.ServiceRooms, "exists", string(roomID), request.RoomPlayerRequest{
		RoomID:   roomID,
		PlayerID: playerID,
	}, &out)
	return out.Exists, err
}

// UpdateGame replaces a seated player's game state
func (c *RoomClient) UpdateGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData) error {
	return c.client.Call(ctx, partition.ServiceRooms, "updategame", string(roomID), request.RoomUpdateRequest{
		RoomID:   roomID,
		PlayerID: playerID,
		Player:   data,
	}, nil)
}

// GetGame returns a room snapshot
func (c *RoomClient) GetGame(ctx context.Context, roomID model.RoomID) ([]model.PlayerEntry, error) {
	var out response.Game
	if err := c.client.Call(ctx, partition.ServiceRooms, "getgame", string(roomID), request.RoomGetRequest{RoomID: roomID}, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}

// EndGame takes a player out of a room
func (c *RoomClient) EndGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) error {
	return c.client.Call(ctx, partition.ServiceRooms, "endgame", string(roomID), request.RoomPlayerRequest{
		RoomID:   roomID,
		PlayerID: playerID,
	}, nil)
}

// GetRooms lists the rooms of one partition
func (c *RoomClient) GetRooms(ctx context.Context, p int) ([]model.RoomEntry, error) {
	var out response.Rooms
	if err := c.client.CallPartition(ctx, partition.ServiceRooms, "rooms", p, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}
