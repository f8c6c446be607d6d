package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/partyroom/internal/api/handler"
	"github.com/mcoot/partyroom/internal/api/middleware"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/readiness"
	"github.com/mcoot/partyroom/internal/services/gateway"
)

// RouterConfig holds configuration for the API router. Each of Players,
// Rooms and Gateway is optional; only the surfaces that are set are mounted.
type RouterConfig struct {
	Logger    *slog.Logger
	Readiness *readiness.State
	Role      string
	Node      string

	Players      handler.PlayerSessions
	PlayerRouter partition.Router

	Rooms      handler.RoomMemberships
	RoomRouter partition.Router

	Gateway *gateway.Service
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	recoveryMiddleware := middleware.Recovery(cfg.Logger)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	readinessMiddleware := middleware.Readiness(cfg.Readiness)

	// Service-to-service calls
	rpc := r.PathPrefix("/rpc/v1").Subrouter()
	rpc.Use(recoveryMiddleware)
	rpc.Use(loggingMiddleware)
	rpc.Use(readinessMiddleware)

	if cfg.Players != nil {
		players := handler.NewPlayerRPCHandler(cfg.Players, cfg.PlayerRouter)
		rpc.HandleFunc("/players/newgame", players.NewGame).Methods(http.MethodPost)
		rpc.HandleFunc("/players/endgame", players.EndGame).Methods(http.MethodPost)
		rpc.HandleFunc("/players/get", players.Get).Methods(http.MethodPost)
		rpc.HandleFunc("/players/stats", players.Stats).Methods(http.MethodPost)
	}

	if cfg.Rooms != nil {
		rooms := handler.NewRoomRPCHandler(cfg.Rooms, cfg.RoomRouter)
		rpc.HandleFunc("/rooms/newgame", rooms.NewGame).Methods(http.MethodPost)
		rpc.HandleFunc("/rooms/exists", rooms.Exists).Methods(http.MethodPost)
		rpc.HandleFunc("/rooms/updategame", rooms.UpdateGame).Methods(http.MethodPost)
		rpc.HandleFunc("/rooms/getgame", rooms.GetGame).Methods(http.MethodPost)
		rpc.HandleFunc("/rooms/endgame", rooms.EndGame).Methods(http.MethodPost)
		rpc.HandleFunc("/rooms/rooms", rooms.Rooms).Methods(http.MethodPost)
	}

	// Public API
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)
	api.Use(readinessMiddleware)

	if cfg.Gateway != nil {
		gw := handler.NewGatewayHandler(cfg.Gateway)
		api.HandleFunc("/players/{player_id}/games", gw.NewGame).Methods(http.MethodPost)
		api.HandleFunc("/stats", gw.Stats).Methods(http.MethodGet)
		api.HandleFunc("/rooms", gw.Rooms).Methods(http.MethodGet)
		api.HandleFunc("/rooms/{room_id}/game", gw.GetGame).Methods(http.MethodGet)
		api.HandleFunc("/rooms/{room_id}/players/{player_id}", gw.UpdateGame).Methods(http.MethodPut)
		api.HandleFunc("/rooms/{room_id}/players/{player_id}", gw.EndGame).Methods(http.MethodDelete)
		api.HandleFunc("/rooms/{room_id}/stream", gw.Stream(cfg.Logger)).Methods(http.MethodGet)
	}

	api.HandleFunc("/health", handler.Health(cfg.Role, cfg.Node)).Methods(http.MethodGet)

	return r
}
