package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/model"
)

// stdout receives all command output
var stdout io.Writer = os.Stdout

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format, w: stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.NewGame:
		o.printNewGame(v)
	case response.Game:
		o.printGame(v)
	case response.Rooms:
		o.printRooms(v)
	case model.PlayerStats:
		o.printStats(v)
	case response.Health:
		o.printHealth(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printNewGame(g response.NewGame) {
	o.printf("Joined room %s (%s)\n", g.RoomID, g.RoomType)
	o.printf("Position: (%d, %d)\n", g.Player.X, g.Player.Y)
	o.printf("Color: #%s\n", g.Player.Color)
}

func (o *Output) printGame(g response.Game) {
	o.printf("Room: %s\n", g.RoomID)
	o.printf("Players (%d):\n", len(g.Players))
	for _, p := range g.Players {
		o.printf("  - %s at (%d, %d) #%s\n", p.PlayerID, p.Player.X, p.Player.Y, p.Player.Color)
	}
}

func (o *Output) printRooms(r response.Rooms) {
	if len(r.Rooms) == 0 {
		o.printf("No rooms\n")
		return
	}
	for _, room := range r.Rooms {
		o.printf("%-20s %-8s %d players\n", room.RoomID, room.Room.RoomType, room.Room.NumPlayers)
	}
}

func (o *Output) printStats(s model.PlayerStats) {
	o.printf("Accounts: %d\n", s.NumAccounts)
	o.printf("Logged in: %d\n", s.NumLoggedIn)
	o.printf("Avg logins: %.2f\n", s.AvgNumLogins)
	o.printf("Avg account age: %s\n", time.Duration(s.AvgAccountAge*float64(time.Second)).Round(time.Second))
}

func (o *Output) printHealth(h response.Health) {
	o.printf("Status: %s\n", h.Status)
	if h.Role != "" {
		o.printf("Role: %s\n", h.Role)
	}
	if h.Node != "" {
		o.printf("Node: %s\n", h.Node)
	}
}
