package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/factory"
	"github.com/mcoot/partyroom/internal/model"
)

// run executes the CLI against srv with JSON output and returns what it printed
func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })

	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"--server", srv.URL, "--output", "json"}, args...))
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	err := cmd.Execute()
	return buf.String(), err
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	app := factory.NewTestApp()
	srv := httptest.NewServer(app.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = app.Stop(t.Context())
	})
	return srv
}

func TestSessionCommands(t *testing.T) {
	srv := newServer(t)

	out, err := run(t, srv, "newgame", "alice", "r1", "--type", "Garden")
	require.NoError(t, err, out)

	var joined response.NewGame
	require.NoError(t, json.Unmarshal([]byte(out), &joined))
	assert.Equal(t, model.RoomID("r1"), joined.RoomID)
	assert.Equal(t, model.RoomTypeGarden, joined.RoomType)

	out, err = run(t, srv, "update", "r1", "alice", "-x", "4", "-y", "9", "--color", "123ABC")
	require.NoError(t, err, out)

	out, err = run(t, srv, "game", "r1")
	require.NoError(t, err, out)

	var game response.Game
	require.NoError(t, json.Unmarshal([]byte(out), &game))
	require.Len(t, game.Players, 1)
	assert.Equal(t, model.PlayerData{X: 4, Y: 9, Color: "123ABC"}, game.Players[0].Player)

	out, err = run(t, srv, "endgame", "r1", "alice")
	require.NoError(t, err, out)

	out, err = run(t, srv, "rooms")
	require.NoError(t, err, out)

	var rooms response.Rooms
	require.NoError(t, json.Unmarshal([]byte(out), &rooms))
	assert.Empty(t, rooms.Rooms)
}

func TestAPIErrorsSurface(t *testing.T) {
	srv := newServer(t)

	_, err := run(t, srv, "newgame", "alice", "r1")
	require.NoError(t, err)

	_, err = run(t, srv, "newgame", "alice", "r2")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ALREADY_LOGGED_IN", apiErr.Code)
	assert.Equal(t, 409, apiErr.Status)

	_, err = run(t, srv, "game", "nowhere")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ROOM_NOT_FOUND", apiErr.Code)
}

func TestStatsAndHealth(t *testing.T) {
	srv := newServer(t)

	_, err := run(t, srv, "newgame", "alice", "r1")
	require.NoError(t, err)

	out, err := run(t, srv, "stats")
	require.NoError(t, err, out)

	var stats model.PlayerStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(1), stats.NumAccounts)
	assert.Equal(t, int64(1), stats.NumLoggedIn)

	out, err = run(t, srv, "health")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"status": "ok"`)
}

func TestWatchPrintsSnapshots(t *testing.T) {
	srv := newServer(t)

	_, err := run(t, srv, "newgame", "alice", "r1")
	require.NoError(t, err)

	out, err := run(t, srv, "watch", "r1", "--count", "1")
	require.NoError(t, err, out)

	var game response.Game
	require.NoError(t, json.Unmarshal([]byte(out), &game))
	assert.Equal(t, model.RoomID("r1"), game.RoomID)
	require.Len(t, game.Players, 1)
	assert.Equal(t, model.PlayerID("alice"), game.Players[0].PlayerID)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/v1/rooms/r1/stream"},
		{"https://party.example.com/", "wss://party.example.com/api/v1/rooms/r1/stream"},
		{"http://gw:80/prefix", "ws://gw:80/prefix/api/v1/rooms/r1/stream"},
	}

	for _, tt := range tests {
		got, err := streamURL(tt.server, "r1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{format: "text", w: &buf}

	out.Print(response.Rooms{Rooms: []model.RoomEntry{
		{RoomID: "r1", Room: model.RoomRecord{RoomType: model.RoomTypeCafe, NumPlayers: 2}},
	}})
	out.Print(model.PlayerStats{NumAccounts: 3, NumLoggedIn: 1, AvgNumLogins: 1.5, AvgAccountAge: 90})

	text := buf.String()
	assert.Contains(t, text, "r1")
	assert.Contains(t, text, "Cafe")
	assert.Contains(t, text, "2 players")
	assert.Contains(t, text, "Accounts: 3")
	assert.Contains(t, text, "Avg logins: 1.50")
	assert.Contains(t, text, "Avg account age: 1m30s")
}
