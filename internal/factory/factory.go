package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/partyroom/internal/api"
	"github.com/mcoot/partyroom/internal/config"
	"github.com/mcoot/partyroom/internal/dependencies/clock"
	"github.com/mcoot/partyroom/internal/dependencies/random"
	"github.com/mcoot/partyroom/internal/events"
	"github.com/mcoot/partyroom/internal/partition"
	"github.com/mcoot/partyroom/internal/readiness"
	"github.com/mcoot/partyroom/internal/rpc"
	"github.com/mcoot/partyroom/internal/services/gateway"
	"github.com/mcoot/partyroom/internal/services/playersession"
	"github.com/mcoot/partyroom/internal/services/roommembership"
	"github.com/mcoot/partyroom/internal/services/sweeper"
	"github.com/mcoot/partyroom/internal/storage"
	"github.com/mcoot/partyroom/internal/storage/memory"
	"github.com/mcoot/partyroom/internal/storage/postgres"
	redisstorage "github.com/mcoot/partyroom/internal/storage/redis"
)

// App contains all wired application components. Components a role does
// not run are nil.
type App struct {
	Config    *config.Config
	NodeID    string
	Logger    *slog.Logger
	Readiness *readiness.State

	// External dependencies
	Clock     clock.Clock
	Random    random.Random
	Publisher events.Publisher

	// Partitioning
	PlayerRouter partition.Router
	RoomRouter   partition.Router
	Resolver     partition.Resolver
	Registry     *partition.RedisRegistry

	// Storage
	PlayerHost *storage.Host
	RoomHost   *storage.Host

	// Services
	Players *playersession.Controller
	Rooms   *roommembership.Controller
	Gateway *gateway.Service
	Sweeper *sweeper.Worker

	// Handler serves every surface of this process
	Handler http.Handler

	endpoint string
	closers  []func() error
}

// Dependencies are the pieces New builds from configuration and tests
// replace
type Dependencies struct {
	Clock     clock.Clock
	Random    random.Random
	Publisher events.Publisher
	Opener    func(service partition.Service) storage.Opener
	Resolver  partition.Resolver
	Registry  *partition.RedisRegistry
}

// New creates a new application with all dependencies wired per cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	deps := Dependencies{
		Clock:  clock.New(),
		Random: random.New(),
	}

	opener, closeStorage, err := newOpener(ctx, cfg, nodeID)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStorage)
	deps.Opener = opener

	resolver, registry, closeRegistry, err := newResolver(cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeRegistry)
	deps.Resolver = resolver
	deps.Registry = registry

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, publisher.Close)
	deps.Publisher = publisher

	app := newWithDependencies(cfg, nodeID, deps, logger)
	app.closers = closers
	return app, nil
}

// newOpener returns the per-service store opener of the configured backend
func newOpener(ctx context.Context, cfg *config.Config, nodeID string) (func(partition.Service) storage.Opener, func() error, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		mc := cfg.Storage.Memory
		return func(service partition.Service) storage.Opener {
			return func(_ context.Context, p int) (storage.Store, error) {
				opts := memory.Options{LockTimeout: mc.LockTimeout}
				if mc.WALDir != "" {
					opts.WALPath = filepath.Join(mc.WALDir, fmt.Sprintf("%s-%d.wal", service, p))
				}
				store, err := memory.New(opts)
				if err != nil {
					return nil, err
				}
				return store, nil
			}
		}, func() error { return nil }, nil

	case config.StorageRedis:
		rc := redisstorage.Config{
			URL:          cfg.Storage.Redis.URL,
			PoolSize:     cfg.Storage.Redis.PoolSize,
			MinIdleConns: cfg.Storage.Redis.MinIdleConns,
			KeyPrefix:    cfg.Storage.Redis.KeyPrefix,
			LockTTL:      cfg.Storage.Redis.LockTTL,
			LockTimeout:  cfg.Storage.Redis.LockTimeout,
		}
		client, err := redisstorage.Connect(rc)
		if err != nil {
			return nil, nil, err
		}
		return redisOpener(client, rc, nodeID), client.Close, nil

	case config.StoragePostgres:
		pc := postgres.Config{
			URL:            cfg.Storage.Postgres.URL,
			MaxConnections: cfg.Storage.Postgres.MaxConnections,
			MinConnections: cfg.Storage.Postgres.MinConnections,
			LockTimeout:    cfg.Storage.Postgres.LockTimeout,
		}
		pool, err := postgres.Connect(ctx, pc)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgresOpener(pool, pc, nodeID), func() error { pool.Close(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}
}

func redisOpener(client *goredis.Client, rc redisstorage.Config, nodeID string) func(partition.Service) storage.Opener {
	return func(service partition.Service) storage.Opener {
		return func(_ context.Context, p int) (storage.Store, error) {
			return redisstorage.New(client, rc, string(service), p, nodeID), nil
		}
	}
}

func postgresOpener(pool *pgxpool.Pool, pc postgres.Config, nodeID string) func(partition.Service) storage.Opener {
	return func(service partition.Service) storage.Opener {
		return func(_ context.Context, p int) (storage.Store, error) {
			return postgres.New(pool, pc, string(service), p, nodeID), nil
		}
	}
}

// newResolver builds the partition resolver the RPC clients use
func newResolver(cfg *config.Config) (partition.Resolver, *partition.RedisRegistry, func() error, error) {
	switch cfg.Registry.Type {
	case config.RegistryStatic:
		players := partition.NewTable(cfg.Partitions.Players)
		rooms := partition.NewTable(cfg.Partitions.Rooms)
		if len(cfg.Registry.Static.Players) > 0 {
			if err := players.Rebalance(cfg.Registry.Static.Players); err != nil {
				return nil, nil, nil, err
			}
		}
		if len(cfg.Registry.Static.Rooms) > 0 {
			if err := rooms.Rebalance(cfg.Registry.Static.Rooms); err != nil {
				return nil, nil, nil, err
			}
		}
		resolver := partition.NewStaticResolver(map[partition.Service]*partition.Table{
			partition.ServicePlayers: players,
			partition.ServiceRooms:   rooms,
		})
		return resolver, nil, func() error { return nil }, nil

	case config.RegistryRedis:
		client, err := redisstorage.Connect(redisstorage.Config{
			URL:          cfg.Registry.Redis.URL,
			PoolSize:     cfg.Storage.Redis.PoolSize,
			MinIdleConns: cfg.Storage.Redis.MinIdleConns,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		registry := partition.NewRedisRegistry(client)
		return registry, registry, client.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("invalid registry type %q", cfg.Registry.Type)
	}
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Kafka.Enabled {
		return events.NopPublisher{}, nil
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:  cfg.Events.Kafka.Brokers,
		Topic:    cfg.Events.Kafka.Topic,
		ClientID: cfg.Events.Kafka.ClientID,
	})
}

// playersRef lets the room controller be built before the player
// controller it calls in the single-process role
type playersRef struct {
	*playersession.Controller
}

// newWithDependencies wires the components of cfg.Node.Role (useful for testing)
func newWithDependencies(cfg *config.Config, nodeID string, deps Dependencies, logger *slog.Logger) *App {
	app := &App{
		Config:       cfg,
		NodeID:       nodeID,
		Logger:       logger,
		Readiness:    readiness.NewState(),
		Clock:        deps.Clock,
		Random:       deps.Random,
		Publisher:    deps.Publisher,
		PlayerRouter: partition.NewRouter(cfg.Partitions.Players),
		RoomRouter:   partition.NewRouter(cfg.Partitions.Rooms),
		Resolver:     deps.Resolver,
		Registry:     deps.Registry,
	}

	role := cfg.Node.Role
	hostsPlayers := role == config.RolePlayer || role == config.RoleAll
	hostsRooms := role == config.RoleRoom || role == config.RoleAll

	client := rpc.NewClient(deps.Resolver, map[partition.Service]partition.Router{
		partition.ServicePlayers: app.PlayerRouter,
		partition.ServiceRooms:   app.RoomRouter,
	}, rpc.Config{
		Timeout:      cfg.RPC.Timeout,
		RetryInitial: cfg.RPC.RetryInitial,
		RetryMax:     cfg.RPC.RetryMax,
		RetryBudget:  cfg.RPC.RetryBudget,
	}, logger)

	if hostsPlayers {
		app.PlayerHost = storage.NewHost(string(partition.ServicePlayers), deps.Opener(partition.ServicePlayers), logger)
	}
	if hostsRooms {
		app.RoomHost = storage.NewHost(string(partition.ServiceRooms), deps.Opener(partition.ServiceRooms), logger)
	}

	switch role {
	case config.RoleAll:
		ref := &playersRef{}
		app.Rooms = roommembership.NewController(app.RoomHost, app.RoomRouter, ref, deps.Clock, logger)
		app.Players = playersession.NewController(app.PlayerHost, app.PlayerRouter, app.Rooms, deps.Publisher, deps.Clock, deps.Random, logger)
		ref.Controller = app.Players
		app.Gateway = gateway.NewService(app.Players, app.Rooms, app.PlayerRouter, app.RoomRouter, deps.Clock, gatewayConfig(cfg), logger)

	case config.RolePlayer:
		app.Players = playersession.NewController(app.PlayerHost, app.PlayerRouter, rpc.NewRoomClient(client), deps.Publisher, deps.Clock, deps.Random, logger)

	case config.RoleRoom:
		app.Rooms = roommembership.NewController(app.RoomHost, app.RoomRouter, rpc.NewPlayerClient(client), deps.Clock, logger)

	case config.RoleGateway:
		app.Gateway = gateway.NewService(rpc.NewPlayerClient(client), rpc.NewRoomClient(client), app.PlayerRouter, app.RoomRouter, deps.Clock, gatewayConfig(cfg), logger)
	}

	if app.Rooms != nil && cfg.SweepEnabled() {
		app.Sweeper = sweeper.NewWorker(app.Rooms, app.RoomHost, deps.Publisher, deps.Clock, sweeper.Config{
			Interval:  cfg.Sweep.Interval,
			Threshold: cfg.Sweep.Threshold,
		}, logger)
	}

	routerCfg := api.RouterConfig{
		Logger:       logger,
		Readiness:    app.Readiness,
		Role:         role,
		Node:         nodeID,
		PlayerRouter: app.PlayerRouter,
		RoomRouter:   app.RoomRouter,
		Gateway:      app.Gateway,
	}
	if app.Players != nil {
		routerCfg.Players = app.Players
	}
	if app.Rooms != nil {
		routerCfg.Rooms = app.Rooms
	}
	app.Handler = api.NewRouter(routerCfg)

	return app
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	return gateway.Config{
		StatsCacheTTL:  cfg.Gateway.StatsCacheTTL,
		StreamInterval: cfg.Gateway.StreamInterval,
	}
}

// ownedPartitions decides which partitions of a service this node serves:
// the configured list, else what the static registry assigns to endpoint,
// else all of them
func (a *App) ownedPartitions(service partition.Service, configured []int, router partition.Router) []int {
	if len(configured) > 0 {
		return configured
	}
	if static, ok := a.Resolver.(*partition.StaticResolver); ok && a.endpoint != "" {
		if owned := static.PartitionsOf(service, a.endpoint); len(owned) > 0 {
			return owned
		}
	}
	return router.All()
}

// Start acquires this node's partitions, publishes their endpoint, starts
// the sweep and flips the process to ready. endpoint is the address other
// processes reach this one at.
func (a *App) Start(ctx context.Context, endpoint string) error {
	a.endpoint = endpoint

	if a.PlayerHost != nil {
		if err := a.acquire(ctx, a.PlayerHost, partition.ServicePlayers, a.ownedPartitions(partition.ServicePlayers, a.Config.Node.PlayerPartitions, a.PlayerRouter)); err != nil {
			return err
		}
	}
	if a.RoomHost != nil {
		if err := a.acquire(ctx, a.RoomHost, partition.ServiceRooms, a.ownedPartitions(partition.ServiceRooms, a.Config.Node.RoomPartitions, a.RoomRouter)); err != nil {
			return err
		}
	}

	if a.Sweeper != nil {
		a.Sweeper.Start(context.WithoutCancel(ctx))
	}

	a.Readiness.SetReady()
	a.Logger.Info("node ready",
		"node", a.NodeID,
		"role", a.Config.Node.Role,
		"endpoint", endpoint,
	)
	return nil
}

func (a *App) acquire(ctx context.Context, host *storage.Host, service partition.Service, partitions []int) error {
	for _, p := range partitions {
		if err := host.Acquire(ctx, p); err != nil {
			return err
		}
		if a.Registry != nil && a.endpoint != "" {
			if err := a.Registry.Register(ctx, service, p, a.endpoint); err != nil {
				return fmt.Errorf("registering %s partition %d: %w", service, p, err)
			}
		}
	}
	return nil
}

// Stop flips the process to not ready, stops the sweep, gives up every
// partition and closes external connections
func (a *App) Stop(ctx context.Context) error {
	a.Readiness.SetNotReady()

	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	var errs []error
	release := func(host *storage.Host, service partition.Service) {
		if host == nil {
			return
		}
		for _, p := range host.Partitions() {
			if a.Registry != nil && a.endpoint != "" {
				errs = append(errs, a.Registry.Deregister(ctx, service, p, a.endpoint))
			}
		}
		errs = append(errs, host.Close(ctx))
	}
	release(a.PlayerHost, partition.ServicePlayers)
	release(a.RoomHost, partition.ServiceRooms)

	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil

	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("errors during shutdown", "error", err)
		return err
	}
	return nil
}
