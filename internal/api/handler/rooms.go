package handler

import (
	"context"
	"net/http"

	"github.com/mcoot/partyroom/internal/api/request"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
)

// RoomMemberships is the room membership controller as served over RPC
type RoomMemberships interface {
	NewGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData, roomType model.RoomType) (model.RoomType, error)
	Exists(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) (bool, error)
	UpdateGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData) error
	GetGame(ctx context.Context, roomID model.RoomID) ([]model.PlayerEntry, error)
	EndGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) error
	GetRooms(ctx context.Context, partition int) ([]model.RoomEntry, error)
}

// RoomRPCHandler serves the room partitions to other services
type RoomRPCHandler struct {
	rooms  RoomMemberships
	router partition.Router
}

// NewRoomRPCHandler creates a new room RPC handler
func NewRoomRPCHandler(rooms RoomMemberships, router partition.Router) *RoomRPCHandler {
	return &RoomRPCHandler{rooms: rooms, router: router}
}

// NewGame handles POST /rpc/v1/rooms/newgame
func (h *RoomRPCHandler) NewGame(w http.ResponseWriter, r *http.Request) {
	var req request.RoomNewGameRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.RoomID)); err != nil {
		WriteError(w, err)
		return
	}

	roomType, err := h.rooms.NewGame(r.Context(), req.RoomID, req.PlayerID, req.Player, req.RoomType)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomJoined{RoomType: roomType})
}

// Exists handles POST /rpc/v1/rooms/exists
func (h *RoomRPCHandler) Exists(w http.ResponseWriter, r *http.Request) {
	var req request.RoomPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.RoomID)); err != nil {
		WriteError(w, err)
		return
	}

	seated, err := h.rooms.Exists(r.Context(), req.RoomID, req.PlayerID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Exists{Exists: seated})
}

// UpdateGame handles POST /rpc/v1/rooms/updategame
func (h *RoomRPCHandler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	var req request.RoomUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.RoomID)); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.rooms.UpdateGame(r.Context(), req.RoomID, req.PlayerID, req.Player); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// GetGame handles POST /rpc/v1/rooms/getgame
func (h *RoomRPCHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	var req request.RoomGetRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.RoomID)); err != nil {
		WriteError(w, err)
		return
	}

	players, err := h.rooms.GetGame(r.Context(), req.RoomID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Game{RoomID: req.RoomID, Players: players})
}

// EndGame handles POST /rpc/v1/rooms/endgame
func (h *RoomRPCHandler) EndGame(w http.ResponseWriter, r *http.Request) {
	var req request.RoomPlayerRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := checkKeyPartition(r, h.router, string(req.RoomID)); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.rooms.EndGame(r.Context(), req.RoomID, req.PlayerID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Rooms handles POST /rpc/v1/rooms/rooms
func (h *RoomRPCHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	p, err := targetPartition(r, h.router)
	if err != nil {
		WriteError(w, err)
		return
	}

	rooms, err := h.rooms.GetRooms(r.Context(), p)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Rooms{Rooms: rooms})
}
