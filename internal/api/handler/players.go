package handler

import (
	"context"
	"net/http"

	"github.com/mcoot/partyroom/internal/api/request"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/services/playersession"
)

// PlayerSessions is the player session controller as served over RPC
type PlayerSessions interface {
	NewGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, roomType model.RoomType) (*playersession.NewGameResult, error)
	EndGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, data model.PlayerData) error
	GetPlayer(ctx context.Context, playerID model.PlayerID) (*model.PlayerRecord, error)
	GetStats(ctx context.Context, partition int) (model.PlayerStats, error)
}

// PlayerRPCHandler serves the player partitions to other services
type PlayerRPCHandler struct {
	players PlayerSessions
	router  partition.Router
}

// NewPlayerRPCHandler creates a new player RPC handler
func NewPlayerRPCHandler(players PlayerSessions, router partition.Router) *PlayerRPCHandler {
	return &PlayerRPCHandler{players: players, router: router}
}

// NewGame handles POST /rpc/v1/players/newgame
func (h *PlayerRPCHandler) NewGame(w http.ResponseWriter, r *http.Request) {
	var req request.PlayerNewGameRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.PlayerID)); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.players.NewGame(r.Context(), req.PlayerID, req.RoomID, req.RoomType)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.NewGame{
		RoomID:   res.RoomID,
		RoomType: res.RoomType,
		Player:   res.Player,
	})
}

// EndGame handles POST /rpc/v1/players/endgame
func (h *PlayerRPCHandler) EndGame(w http.ResponseWriter, r *http.Request) {
	var req request.PlayerEndGameRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.PlayerID)); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.players.EndGame(r.Context(), req.PlayerID, req.RoomID, req.Player); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Get handles POST /rpc/v1/players/get
func (h *PlayerRPCHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req request.PlayerGetRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.PlayerID)); err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.players.GetPlayer(r.Context(), req.PlayerID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, rec)
}

// Stats handles POST /rpc/v1/players/stats
func (h *PlayerRPCHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, err := targetPartition(r, h.router)
	if err != nil {
		WriteError(w, err)
		return
	}

	stats, err := h.players.GetStats(r.Context(), p)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, stats)
}
