package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Roles a server process can run as
const (
	RolePlayer  = "player"
	RoleRoom    = "room"
	RoleGateway = "gateway"
	RoleAll     = "all"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Registry types
const (
	RegistryStatic = "static"
	RegistryRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Node       NodeConfig       `yaml:"node"`
	Partitions PartitionsConfig `yaml:"partitions"`
	Storage    StorageConfig    `yaml:"storage"`
	Registry   RegistryConfig   `yaml:"registry"`
	RPC        RPCConfig        `yaml:"rpc"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Events     EventsConfig     `yaml:"events"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AdvertiseAddr   string        `yaml:"advertise_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NodeConfig identifies this process and the partitions it serves. Empty
// partition lists mean "whatever the registry assigns to this node", or
// every partition when nothing is assigned.
type NodeConfig struct {
	ID               string `yaml:"id"`
	Role             string `yaml:"role"`
	PlayerPartitions []int  `yaml:"player_partitions"`
	RoomPartitions   []int  `yaml:"room_partitions"`
}

// PartitionsConfig fixes the partition counts. Every process must agree.
type PartitionsConfig struct {
	Players int `yaml:"players"`
	Rooms   int `yaml:"rooms"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string         `yaml:"type"`
	Memory   MemoryConfig   `yaml:"memory"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MemoryConfig configures the in-memory backend
type MemoryConfig struct {
	WALDir      string        `yaml:"wal_dir"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	KeyPrefix    string        `yaml:"key_prefix"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
}

// RegistryConfig says how partitions are mapped to endpoints
type RegistryConfig struct {
	Type   string               `yaml:"type"`
	Static StaticRegistryConfig `yaml:"static"`
	Redis  RedisRegistryConfig  `yaml:"redis"`
}

// StaticRegistryConfig lists the endpoints of each service. Partitions are
// dealt out to them round-robin.
type StaticRegistryConfig struct {
	Players []string `yaml:"players"`
	Rooms   []string `yaml:"rooms"`
}

// RedisRegistryConfig points at the redis holding registered endpoints
type RedisRegistryConfig struct {
	URL string `yaml:"url"`
}

// RPCConfig holds inter-service call settings
type RPCConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	RetryInitial time.Duration `yaml:"retry_initial"`
	RetryMax     time.Duration `yaml:"retry_max"`
	RetryBudget  time.Duration `yaml:"retry_budget"`
}

// SweepConfig holds inactivity sweep configuration
type SweepConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
}

// EventsConfig holds session event publishing configuration
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// GatewayConfig holds public API settings
type GatewayConfig struct {
	StatsCacheTTL  time.Duration `yaml:"stats_cache_ttl"`
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML bytes, expanding environment variables
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied: a single
// process serving everything from memory
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Node.Role == "" {
		c.Node.Role = RoleAll
	}

	if c.Partitions.Players == 0 {
		c.Partitions.Players = 4
	}
	if c.Partitions.Rooms == 0 {
		c.Partitions.Rooms = 4
	}

	// Storage defaults
	if c.Storage.Type == "" {
		c.Storage.Type = StorageMemory
	}
	if c.Storage.Memory.LockTimeout == 0 {
		c.Storage.Memory.LockTimeout = 5 * time.Second
	}
	if c.Storage.Redis.URL == "" {
		c.Storage.Redis.URL = "redis://localhost:6379"
	}
	if c.Storage.Redis.PoolSize == 0 {
		c.Storage.Redis.PoolSize = 10
	}
	if c.Storage.Redis.MinIdleConns == 0 {
		c.Storage.Redis.MinIdleConns = 2
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "partyroom"
	}
	if c.Storage.Redis.LockTTL == 0 {
		c.Storage.Redis.LockTTL = 30 * time.Second
	}
	if c.Storage.Redis.LockTimeout == 0 {
		c.Storage.Redis.LockTimeout = 5 * time.Second
	}
	if c.Storage.Postgres.URL == "" {
		c.Storage.Postgres.URL = "postgres://localhost:5432/partyroom?sslmode=disable"
	}
	if c.Storage.Postgres.MaxConnections == 0 {
		c.Storage.Postgres.MaxConnections = 10
	}
	if c.Storage.Postgres.MinConnections == 0 {
		c.Storage.Postgres.MinConnections = 2
	}
	if c.Storage.Postgres.LockTimeout == 0 {
		c.Storage.Postgres.LockTimeout = 5 * time.Second
	}

	if c.Registry.Type == "" {
		c.Registry.Type = RegistryStatic
	}
	if c.Registry.Redis.URL == "" {
		c.Registry.Redis.URL = c.Storage.Redis.URL
	}

	// RPC defaults
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = 5 * time.Second
	}
	if c.RPC.RetryInitial == 0 {
		c.RPC.RetryInitial = 50 * time.Millisecond
	}
	if c.RPC.RetryMax == 0 {
		c.RPC.RetryMax = time.Second
	}
	if c.RPC.RetryBudget == 0 {
		c.RPC.RetryBudget = 10 * time.Second
	}

	// Sweep defaults
	if c.Sweep.Enabled == nil {
		enabled := true
		c.Sweep.Enabled = &enabled
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 30 * time.Second
	}
	if c.Sweep.Threshold == 0 {
		c.Sweep.Threshold = 300 * time.Second
	}

	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "partyroom.sessions"
	}
	if c.Events.Kafka.ClientID == "" {
		c.Events.Kafka.ClientID = "partyroom"
	}

	// Gateway defaults
	if c.Gateway.StatsCacheTTL == 0 {
		c.Gateway.StatsCacheTTL = 20 * time.Second
	}
	if c.Gateway.StreamInterval == 0 {
		c.Gateway.StreamInterval = 500 * time.Millisecond
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// SweepEnabled reports whether this process should run the inactivity sweep
func (c *Config) SweepEnabled() bool {
	return c.Sweep.Enabled == nil || *c.Sweep.Enabled
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	switch c.Node.Role {
	case RolePlayer, RoleRoom, RoleGateway, RoleAll:
	default:
		errs = append(errs, fmt.Errorf("node.role %q must be one of player, room, gateway, all", c.Node.Role))
	}

	switch c.Storage.Type {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.type %q must be one of memory, redis, postgres", c.Storage.Type))
	}

	switch c.Registry.Type {
	case RegistryStatic, RegistryRedis:
	default:
		errs = append(errs, fmt.Errorf("registry.type %q must be static or redis", c.Registry.Type))
	}

	if c.Partitions.Players < 1 || c.Partitions.Rooms < 1 {
		errs = append(errs, errors.New("partition counts must be at least 1"))
	}
	errs = append(errs, checkPartitions("node.player_partitions", c.Node.PlayerPartitions, c.Partitions.Players)...)
	errs = append(errs, checkPartitions("node.room_partitions", c.Node.RoomPartitions, c.Partitions.Rooms)...)

	if c.Events.Kafka.Enabled && len(c.Events.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("events.kafka.brokers is required when kafka is enabled"))
	}

	return errors.Join(errs...)
}

func checkPartitions(field string, ids []int, count int) []error {
	var errs []error
	for _, p := range ids {
		if p < 0 || p >= count {
			errs = append(errs, fmt.Errorf("%s: partition %d out of range [0, %d)", field, p, count))
		}
	}
	return errs
}

// ListenAddr returns host:port to bind
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
