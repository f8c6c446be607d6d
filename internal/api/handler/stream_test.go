package handler_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/api/handler"
	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/factory"
	"github.com/mcoot/partyroom/internal/model"
)

func TestStreamOutlivesKeepaliveWindow(t *testing.T) {
	const wait = 300 * time.Millisecond
	t.Cleanup(handler.SetPongWait(wait))

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Stop(t.Context()) })

	_, err := app.Gateway.NewGame(t.Context(), "alice", "r1", "Office")
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/rooms/r1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// The client never writes; only answering server pings keeps the
	// stream open past the read deadline
	deadline := time.Now().Add(5 * wait)
	snapshots := 0
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		var game response.Game
		require.NoError(t, conn.ReadJSON(&game), "stream closed after %d snapshots", snapshots)
		assert.Equal(t, model.RoomID("r1"), game.RoomID)
		snapshots++
	}
	assert.GreaterOrEqual(t, snapshots, 2)
}
