package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/partyroom/internal/api/request"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/services/gateway"
)

// GatewayHandler serves the public API
type GatewayHandler struct {
	gateway *gateway.Service
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(gw *gateway.Service) *GatewayHandler {
	return &GatewayHandler{gateway: gw}
}

// NewGame handles POST /api/v1/players/{player_id}/games
func (h *GatewayHandler) NewGame(w http.ResponseWriter, r *http.Request) {
	playerID := model.PlayerID(mux.Vars(r)["player_id"])

	var req request.NewGameRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.gateway.NewGame(r.Context(), playerID, req.RoomID, string(req.RoomType))
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

// Stats handles GET /api/v1/stats
func (h *GatewayHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gateway.Stats(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, stats)
}

// Rooms handles GET /api/v1/rooms
func (h *GatewayHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.gateway.Rooms(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Rooms{Rooms: rooms})
}

// GetGame handles GET /api/v1/rooms/{room_id}/game
func (h *GatewayHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	roomID := model.RoomID(mux.Vars(r)["room_id"])

	players, err := h.gateway.GetGame(r.Context(), roomID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Game{RoomID: roomID, Players: players})
}

// UpdateGame handles PUT /api/v1/rooms/{room_id}/players/{player_id}
func (h *GatewayHandler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var data model.PlayerData
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.gateway.UpdateGame(r.Context(), model.RoomID(vars["room_id"]), model.PlayerID(vars["player_id"]), data); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// EndGame handles DELETE /api/v1/rooms/{room_id}/players/{player_id}
func (h *GatewayHandler) EndGame(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.gateway.EndGame(r.Context(), model.RoomID(vars["room_id"]), model.PlayerID(vars["player_id"])); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}
