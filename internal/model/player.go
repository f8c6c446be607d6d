package model

import (
	"fmt"
	"regexp"
	"time"
)

// PlayerID uniquely identifies a player across both stores
type PlayerID string

// LogState is the account-side login state of a player
type LogState string

const (
	LoggedIn  LogState = "logged_in"
	LoggedOut LogState = "logged_out"
)

var colorPattern = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

// PlayerData is the game-relevant state of a player. It is replaced
// wholesale on every sync.
type PlayerData struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// Validate checks the colour is a 6-hex-digit code
func (p PlayerData) Validate() error {
	if !colorPattern.MatchString(p.Color) {
		return fmt.Errorf("%w: color %q is not a 6 digit hex code", ErrInvalidPlayerData, p.Color)
	}
	return nil
}

// PlayerRecord is the account-store record for a player. A record is
// created on first login and never deleted.
type PlayerRecord struct {
	Player     PlayerData `json:"player"`
	State      LogState   `json:"state"`
	NumLogins  int        `json:"num_logins"`
	FirstLogin time.Time  `json:"first_login"` // UTC, immutable
	RoomID     RoomID     `json:"room_id"`     // meaningless while LoggedOut
}

// PlayerEntry pairs a player id with its game data, as returned by room snapshots
type PlayerEntry struct {
	PlayerID PlayerID   `json:"player_id"`
	Player   PlayerData `json:"player"`
}
