package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
)

const (
	// Time allowed to write one snapshot to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Time allowed to read the next pong message from the peer. Pings go out
// at 9/10 of it.
var pongWait = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Stream handles GET /api/v1/rooms/{room_id}/stream.
// The room snapshot is pushed every StreamInterval until the client goes
// away. A room that does not exist (yet, or any more) streams as empty.
func (h *GatewayHandler) Stream(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := model.RoomID(mux.Vars(r)["room_id"])
		if err := model.ValidateID(string(roomID)); err != nil {
			WriteError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
			return
		}
		defer conn.Close()

		wait := pongWait
		done := make(chan struct{})
		go func() {
			defer close(done)
			conn.SetReadLimit(maxMessageSize)
			_ = conn.SetReadDeadline(time.Now().Add(wait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(h.gateway.Config().StreamInterval)
		defer ticker.Stop()

		pings := time.NewTicker(wait * 9 / 10)
		defer pings.Stop()

		ctx := r.Context()
	snapshots:
		for {
			players, err := h.gateway.GetGame(ctx, roomID)
			if errors.Is(err, model.ErrRoomNotFound) {
				players, err = []model.PlayerEntry{}, nil
			}

			if err != nil {
				logger.Warn("room snapshot failed", "room_id", roomID, "error", err)
			} else {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(response.Game{RoomID: roomID, Players: players}); err != nil {
					return
				}
			}

			for {
				select {
				case <-done:
					return
				case <-ctx.Done():
					return
				case <-pings.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						return
					}
				case <-ticker.C:
					continue snapshots
				}
			}
		}
	}
}
