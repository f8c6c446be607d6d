package e2e_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/config"
	"github.com/mcoot/partyroom/internal/factory"
	"github.com/mcoot/partyroom/internal/model"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "partyroom-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/partyroom")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// cluster runs a player, a room and a gateway process in-process, each on
// its own listener, wired through the static registry
type cluster struct {
	gatewayURL string
}

func startCluster(t *testing.T) *cluster {
	t.Helper()

	roles := []string{config.RolePlayer, config.RoleRoom, config.RoleGateway}
	listeners := make(map[string]net.Listener, len(roles))
	for _, role := range roles {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[role] = l
	}

	playerAddr := listeners[config.RolePlayer].Addr().String()
	roomAddr := listeners[config.RoleRoom].Addr().String()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	for _, role := range roles {
		cfg := config.Default()
		cfg.Node.Role = role
		cfg.Node.ID = role + "-1"
		cfg.Registry.Type = config.RegistryStatic
		cfg.Registry.Static.Players = []string{playerAddr}
		cfg.Registry.Static.Rooms = []string{roomAddr}
		cfg.Partitions.Players = 3
		cfg.Partitions.Rooms = 2
		cfg.Gateway.StreamInterval = 50 * time.Millisecond
		require.NoError(t, cfg.Validate())

		ctx := context.Background()
		app, err := factory.New(ctx, cfg, logger)
		require.NoError(t, err)

		l := listeners[role]
		server := &http.Server{Handler: app.Handler}
		go func() {
			if err := server.Serve(l); err != http.ErrServerClosed {
				t.Logf("%s server error: %v", role, err)
			}
		}()

		require.NoError(t, app.Start(ctx, l.Addr().String()))

		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
			_ = app.Stop(ctx)
		})
	}

	gatewayURL := "http://" + listeners[config.RoleGateway].Addr().String()
	waitForServer(t, gatewayURL+"/api/v1/health")

	return &cluster{gatewayURL: gatewayURL}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become healthy", url)
}

func TestCLISessionAcrossProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	c := startCluster(t)
	cli := newCLIRunner(t, c.gatewayURL)

	out, err := cli.run("newgame", "alice", "lobby", "--type", "Cafe")
	require.NoError(t, err, out)

	var joined response.NewGame
	require.NoError(t, json.Unmarshal([]byte(out), &joined))
	assert.Equal(t, model.RoomID("lobby"), joined.RoomID)
	assert.Equal(t, model.RoomTypeCafe, joined.RoomType)

	out, err = cli.run("newgame", "bob", "lobby")
	require.NoError(t, err, out)

	// A second login crosses both processes before it is refused
	out, err = cli.run("newgame", "alice", "attic")
	require.Error(t, err)
	assert.Contains(t, out, "ALREADY_LOGGED_IN")

	out, err = cli.run("update", "lobby", "bob", "-x", "12", "-y", "3", "--color", "FFCC99")
	require.NoError(t, err, out)

	out, err = cli.run("game", "lobby")
	require.NoError(t, err, out)

	var game response.Game
	require.NoError(t, json.Unmarshal([]byte(out), &game))
	assert.Len(t, game.Players, 2)

	out, err = cli.run("watch", "lobby", "--count", "2")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)

	out, err = cli.run("endgame", "lobby", "alice")
	require.NoError(t, err, out)

	// Logged out, alice can now join elsewhere
	out, err = cli.run("newgame", "alice", "attic")
	require.NoError(t, err, out)

	out, err = cli.run("rooms")
	require.NoError(t, err, out)

	var rooms response.Rooms
	require.NoError(t, json.Unmarshal([]byte(out), &rooms))
	require.Len(t, rooms.Rooms, 2)
	assert.Equal(t, model.RoomID("attic"), rooms.Rooms[0].RoomID)
	assert.Equal(t, model.RoomID("lobby"), rooms.Rooms[1].RoomID)

	out, err = cli.run("stats")
	require.NoError(t, err, out)

	var stats model.PlayerStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.NumAccounts)
	assert.Equal(t, int64(2), stats.NumLoggedIn)
	assert.InDelta(t, 1.5, stats.AvgNumLogins, 1e-9)
}

func TestCLIHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	c := startCluster(t)
	cli := newCLIRunner(t, c.gatewayURL)

	out, err := cli.run("health")
	require.NoError(t, err, out)

	var health response.Health
	require.NoError(t, json.Unmarshal([]byte(out), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, config.RoleGateway, health.Role)
}
