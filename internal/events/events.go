// Package events publishes player session lifecycle events. Publishing
// happens after the state change has committed and never fails the request
// that caused it.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/partyroom/internal/model"
)

// Type names a session lifecycle event
type Type string

const (
	PlayerLoggedIn  Type = "player.logged_in"
	PlayerLoggedOut Type = "player.logged_out"
	PlayerEvicted   Type = "player.evicted"
)

// Event is one session state change
type Event struct {
	ID       string         `json:"id"`
	Type     Type           `json:"type"`
	PlayerID model.PlayerID `json:"player_id"`
	RoomID   model.RoomID   `json:"room_id,omitempty"`
	At       time.Time      `json:"at"`
}

// New creates an event with a fresh id
func New(typ Type, playerID model.PlayerID, roomID model.RoomID, at time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		PlayerID: playerID,
		RoomID:   roomID,
		At:       at,
	}
}

// Publisher delivers events to a sink
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Emit publishes ev and logs instead of returning any failure
func Emit(ctx context.Context, pub Publisher, logger *slog.Logger, ev Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish event",
			"event_type", ev.Type,
			"player_id", ev.PlayerID,
			"room_id", ev.RoomID,
			"error", err,
		)
	}
}
