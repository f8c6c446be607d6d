package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcoot/partyroom/internal/api/response"
)

func newWatchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "watch <room-id>",
		Short: "Stream a room's players live",
		Long: `Connect to the room's websocket stream and print every snapshot the
gateway pushes. A room with nobody in it streams as empty.

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchRoom(ctx, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "count", "n", 0, "Stop after this many snapshots (0 streams until interrupted)")

	return cmd
}

// streamURL turns the gateway URL into the websocket URL of a room stream
func streamURL(serverURL, roomID string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/rooms/" + url.PathEscape(roomID) + "/stream"
	return u.String(), nil
}

func watchRoom(ctx context.Context, roomID string, limit int) error {
	wsURL, err := streamURL(cfg.ServerURL, roomID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer func() { _ = conn.Close() }()

	if cfg.Verbose {
		_, _ = fmt.Fprintf(os.Stderr, "Connected to %s\n", wsURL)
	}

	// Unblock the read loop on interrupt
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	out := NewOutput(cfg.Output)
	for n := 0; limit == 0 || n < limit; n++ {
		var game response.Game
		if err := conn.ReadJSON(&game); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}

		if cfg.Output == "json" {
			data, _ := json.Marshal(game)
			_, _ = fmt.Fprintln(stdout, string(data))
			continue
		}
		out.Print(game)
		_, _ = fmt.Fprintln(stdout)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
