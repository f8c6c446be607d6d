package rpc

import (
	"context"

	"github.com/mcoot/partyroom/internal/api/request"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/services/playersession"
)

// PlayerClient calls the player session service
type PlayerClient struct {
	client *Client
}

// NewPlayerClient creates a new PlayerClient
func NewPlayerClient(client *Client) *PlayerClient {
	return &PlayerClient{client: client}
}

// NewGame logs a player into a room
func (c *PlayerClient) NewGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, roomType model.RoomType) (*playersession.NewGameResult, error) {
	var out response.NewGame
	err := c.client.Call(ctx, partition.ServicePlayers, "newgame", string(playerID), request.PlayerNewGameRequest{
		PlayerID: playerID,
		RoomID:   roomID,
		RoomType: roomType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &playersession.NewGameResult{RoomID: out.RoomID, RoomType: out.RoomType, Player: out.Player}, nil
}

// EndGame hands a player's final state to the account side
func (c *PlayerClient) EndGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, data model.PlayerData) error {
	return c.client.Call(ctx, partition.ServicePlayers, "endgame", string(playerID), request.PlayerEndGameRequest{
		PlayerID: playerID,
		RoomID:   roomID,
		Player:   data,
	}, nil)
}

// GetPlayer returns a player's record
func (c *PlayerClient) GetPlayer(ctx context.Context, playerID model.PlayerID) (*model.PlayerRecord, error) {
	var rec model.PlayerRecord
	if err := c.client.Call(ctx, partition.ServicePlayers, "get", string(playerID), request.PlayerGetRequest{PlayerID: playerID}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetStats returns the account aggregate of one partition
func (c *PlayerClient) GetStats(ctx context.Context, p int) (model.PlayerStats, error) {
	var stats model.PlayerStats
	err := c.client.CallPartition(ctx, partition.ServicePlayers, "stats", p, struct{}{}, &stats)
	return stats, err
}
