// Package gateway is the public face of the system. It validates client
// input, forwards each call to the partition that owns the key, and fans
// out the calls that span every partition.
package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/partyroom/internal/dependencies/clock"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/services/playersession"
)

// Config holds gateway tuning
type Config struct {
	StatsCacheTTL  time.Duration
	StreamInterval time.Duration
}

// DefaultConfig returns the standard gateway settings
func DefaultConfig() Config {
	return Config{
		StatsCacheTTL:  20 * time.Second,
		StreamInterval: 500 * time.Millisecond,
	}
}

// PlayerSessions is the player side as seen from the gateway
type PlayerSessions interface {
	NewGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, roomType model.RoomType) (*playersession.NewGameResult, error)
	GetStats(ctx context.Context, partition int) (model.PlayerStats, error)
}

// RoomMemberships is the room side as seen from the gateway
type RoomMemberships interface {
	GetGame(ctx context.Context, roomID model.RoomID) ([]model.PlayerEntry, error)
	UpdateGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData) error
	EndGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) error
	GetRooms(ctx context.Context, partition int) ([]model.RoomEntry, error)
}

type cachedStats struct {
	stats model.PlayerStats
	at    time.Time
}

// Service implements the public operations
type Service struct {
	players          PlayerSessions
	rooms            RoomMemberships
	playerPartitions partition.Router
	roomPartitions   partition.Router
	clock            clock.Clock
	cfg              Config
	logger           *slog.Logger

	mu    sync.Mutex
	stats *cachedStats
}

// NewService creates a new gateway Service
func NewService(
	players PlayerSessions,
	rooms RoomMemberships,
	playerPartitions partition.Router,
	roomPartitions partition.Router,
	clock clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		players:          players,
		rooms:            rooms,
		playerPartitions: playerPartitions,
		roomPartitions:   roomPartitions,
		clock:            clock,
		cfg:              cfg,
		logger:           logger,
	}
}

// Config returns the gateway settings
func (s *Service) Config() Config {
	return s.cfg
}

// NewGame logs a player into a room
func (s *Service) NewGame(ctx context.Context, playerID model.PlayerID, roomID model.RoomID, roomType string) (*playersession.NewGameResult, error) {
	if err := model.ValidateID(string(playerID)); err != nil {
		return nil, err
	}
	if err := model.ValidateID(string(roomID)); err != nil {
		return nil, err
	}
	rt, err := model.ParseRoomType(roomType)
	if err != nil {
		return nil, err
	}
	return s.players.NewGame(ctx, playerID, roomID, rt)
}

// GetGame returns a room snapshot
func (s *Service) GetGame(ctx context.Context, roomID model.RoomID) ([]model.PlayerEntry, error) {
	if err := model.ValidateID(string(roomID)); err != nil {
		return nil, err
	}
	return s.rooms.GetGame(ctx, roomID)
}

// UpdateGame syncs a seated player's state
func (s *Service) UpdateGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID, data model.PlayerData) error {
	if err := model.ValidateID(string(roomID)); err != nil {
		return err
	}
	if err := model.ValidateID(string(playerID)); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	return s.rooms.UpdateGame(ctx, roomID, playerID, data)
}

// EndGame takes a player out of a room and logs them out
func (s *Service) EndGame(ctx context.Context, roomID model.RoomID, playerID model.PlayerID) error {
	if err := model.ValidateID(string(roomID)); err != nil {
		return err
	}
	if err := model.ValidateID(string(playerID)); err != nil {
		return err
	}
	return s.rooms.EndGame(ctx, roomID, playerID)
}

// Stats merges the account aggregates of every player partition. The
// merged value is served from cache until it is older than StatsCacheTTL.
func (s *Service) Stats(ctx context.Context) (model.PlayerStats, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if s.stats != nil && now.Sub(s.stats.at) < s.cfg.StatsCacheTTL {
		cached := s.stats.stats
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	parts := s.playerPartitions.All()
	results := make([]model.PlayerStats, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			stats, err := s.players.GetStats(gctx, p)
			if err != nil {
				s.logger.Warn("stats fan-out failed", "partition", p, "error", err)
				return err
			}
			results[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.PlayerStats{}, err
	}

	var merged model.PlayerStats
	for _, r := range results {
		merged = merged.Merge(r)
	}

	s.mu.Lock()
	s.stats = &cachedStats{stats: merged, at: now}
	s.mu.Unlock()

	return merged, nil
}

// Rooms lists every room across the room partitions, ordered by room id
func (s *Service) Rooms(ctx context.Context) ([]model.RoomEntry, error) {
	parts := s.roomPartitions.All()
	results := make([][]model.RoomEntry, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			rooms, err := s.rooms.GetRooms(gctx, p)
			if err != nil {
				s.logger.Warn("room listing fan-out failed", "partition", p, "error", err)
				return err
			}
			results[i] = rooms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]model.RoomEntry, 0)
	for _, r := range results {
		all = append(all, r...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RoomID < all[j].RoomID })
	return all, nil
}
