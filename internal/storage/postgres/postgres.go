// Package postgres is the PostgreSQL storage backend. Every partition's
// dictionaries share one table; update locks are transaction-scoped
// advisory locks so absent keys can be reserved too.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/storage"
)

// Config holds PostgreSQL connection settings
type Config struct {
	URL            string
	MaxConnections int
	MinConnections int
	LockTimeout    time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:            "postgres://localhost:5432/partyroom?sslmode=disable",
		MaxConnections: 10,
		MinConnections: 2,
		LockTimeout:    5 * time.Second,
	}
}

// Connect creates and verifies a pool shared by every partition's store
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the tables if they do not exist
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS partyroom_kv (
			service VARCHAR(32) NOT NULL,
			partition INT NOT NULL,
			dict VARCHAR(128) NOT NULL,
			key VARCHAR(128) NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (service, partition, dict, key)
		)`,
		`CREATE TABLE IF NOT EXISTS partyroom_owners (
			service VARCHAR(32) NOT NULL,
			partition INT NOT NULL,
			node VARCHAR(64) NOT NULL,
			claimed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (service, partition)
		)`,
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// Store is one partition of one service kept in PostgreSQL
type Store struct {
	pool      *pgxpool.Pool
	cfg       Config
	service   string
	partition int
	node      string
	closed    atomic.Bool
}

// Ensure Store implements the interface
var _ storage.Store = (*Store)(nil)

// New creates the store for a partition. The pool is shared and not closed
// by the store.
func New(pool *pgxpool.Pool, cfg Config, service string, partition int, node string) *Store {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}
	return &Store{
		pool:      pool,
		cfg:       cfg,
		service:   service,
		partition: partition,
		node:      node,
	}
}

// dbError classifies a driver error. Lock timeouts, serialization failures
// and deadlocks are retryable like any other unavailability.
func dbError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return fmt.Errorf("%w: %s", storage.ErrLockTimeout, pgErr.Message)
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", model.ErrTransient, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: postgres: %v", model.ErrTransient, err)
}

func (s *Store) Claim(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO partyroom_owners (service, partition, node, claimed_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (service, partition) DO UPDATE SET node = $3, claimed_at = CURRENT_TIMESTAMP
	`, s.service, s.partition, s.node)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) Disown(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM partyroom_owners WHERE service = $1 AND partition = $2 AND node = $3`,
		s.service, s.partition, s.node)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// checkOwner locks the owner row in share mode so a concurrent Claim waits
// for the caller's transaction to finish
func (s *Store) checkOwner(ctx context.Context, q pgx.Tx) error {
	var node string
	err := q.QueryRow(ctx,
		`SELECT node FROM partyroom_owners WHERE service = $1 AND partition = $2 FOR SHARE`,
		s.service, s.partition).Scan(&node)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && node != s.node) {
		return fmt.Errorf("%w: %s partition %d", model.ErrNotOwner, s.service, s.partition)
	}
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}

	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, dbError(err)
	}

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.cfg.LockTimeout.Milliseconds())
	if _, err := pgtx.Exec(ctx, timeout); err != nil {
		_ = pgtx.Rollback(ctx)
		return nil, dbError(err)
	}

	var node string
	err = pgtx.QueryRow(ctx,
		`SELECT node FROM partyroom_owners WHERE service = $1 AND partition = $2`,
		s.service, s.partition).Scan(&node)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && node != s.node) {
		_ = pgtx.Rollback(ctx)
		return nil, fmt.Errorf("%w: %s partition %d", model.ErrNotOwner, s.service, s.partition)
	}
	if err != nil {
		_ = pgtx.Rollback(ctx)
		return nil, dbError(err)
	}

	return &tx{
		store:  s,
		pgtx:   pgtx,
		held:   make(map[entryKey]struct{}),
		writes: make(map[entryKey]write),
		scans:  make(map[string][]storage.Entry),
	}, nil
}

type entryKey struct {
	dict string
	key  string
}

type write struct {
	value   []byte
	deleted bool
}

// tx runs at read committed. Point reads see the latest committed row;
// the first Scan of a dictionary is cached, and writes made afterwards by
// this transaction are overlaid on it.
type tx struct {
	store  *Store
	pgtx   pgx.Tx
	held   map[entryKey]struct{}
	writes map[entryKey]write
	scans  map[string][]storage.Entry
	done   bool
}

func (t *tx) lock(ctx context.Context, dict, key string) error {
	k := entryKey{dict: dict, key: key}
	if _, ok := t.held[k]; ok {
		return nil
	}
	lockName := fmt.Sprintf("%s/%d/%s/%s", t.store.service, t.store.partition, dict, key)
	if _, err := t.pgtx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockName); err != nil {
		return dbError(err)
	}
	t.held[k] = struct{}{}
	return nil
}

func (t *tx) lookup(ctx context.Context, dict, key string) ([]byte, bool, error) {
	var value []byte
	err := t.pgtx.QueryRow(ctx, `
		SELECT value FROM partyroom_kv
		WHERE service = $1 AND partition = $2 AND dict = $3 AND key = $4
	`, t.store.service, t.store.partition, dict, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbError(err)
	}
	return value, true, nil
}

func (t *tx) Get(ctx context.Context, dict, key string, lock storage.LockMode) ([]byte, bool, error) {
	if t.done {
		return nil, false, storage.ErrTxDone
	}
	if lock == storage.LockUpdate {
		if err := t.lock(ctx, dict, key); err != nil {
			return nil, false, err
		}
	}
	return t.lookup(ctx, dict, key)
}

func (t *tx) Set(ctx context.Context, dict, key string, value []byte) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.lock(ctx, dict, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := t.pgtx.Exec(ctx, `
		INSERT INTO partyroom_kv (service, partition, dict, key, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service, partition, dict, key) DO UPDATE SET value = EXCLUDED.value
	`, t.store.service, t.store.partition, dict, key, value)
	if err != nil {
		return dbError(err)
	}
	t.writes[entryKey{dict: dict, key: key}] = write{value: value}
	return nil
}

func (t *tx) Add(ctx context.Context, dict, key string, value []byte) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.lock(ctx, dict, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	tag, err := t.pgtx.Exec(ctx, `
		INSERT INTO partyroom_kv (service, partition, dict, key, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service, partition, dict, key) DO NOTHING
	`, t.store.service, t.store.partition, dict, key, value)
	if err != nil {
		return dbError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", storage.ErrDuplicateKey, dict, key)
	}
	t.writes[entryKey{dict: dict, key: key}] = write{value: value}
	return nil
}

func (t *tx) Remove(ctx context.Context, dict, key string) (bool, error) {
	if t.done {
		return false, storage.ErrTxDone
	}
	if err := t.lock(ctx, dict, key); err != nil {
		return false, err
	}
	tag, err := t.pgtx.Exec(ctx, `
		DELETE FROM partyroom_kv
		WHERE service = $1 AND partition = $2 AND dict = $3 AND key = $4
	`, t.store.service, t.store.partition, dict, key)
	if err != nil {
		return false, dbError(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	t.writes[entryKey{dict: dict, key: key}] = write{deleted: true}
	return true, nil
}

func (t *tx) ContainsKey(ctx context.Context, dict, key string) (bool, error) {
	if t.done {
		return false, storage.ErrTxDone
	}
	var ok bool
	err := t.pgtx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM partyroom_kv
		WHERE service = $1 AND partition = $2 AND dict = $3 AND key = $4)
	`, t.store.service, t.store.partition, dict, key).Scan(&ok)
	if err != nil {
		return false, dbError(err)
	}
	return ok, nil
}

func (t *tx) Count(ctx context.Context, dict string) (int, error) {
	if t.done {
		return 0, storage.ErrTxDone
	}
	var n int
	err := t.pgtx.QueryRow(ctx, `
		SELECT COUNT(*) FROM partyroom_kv WHERE service = $1 AND partition = $2 AND dict = $3
	`, t.store.service, t.store.partition, dict).Scan(&n)
	if err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

func (t *tx) Scan(ctx context.Context, dict string) ([]storage.Entry, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}

	base, ok := t.scans[dict]
	if !ok {
		rows, err := t.pgtx.Query(ctx, `
			SELECT key, value FROM partyroom_kv
			WHERE service = $1 AND partition = $2 AND dict = $3
			ORDER BY key
		`, t.store.service, t.store.partition, dict)
		if err != nil {
			return nil, dbError(err)
		}
		base, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Entry, error) {
			var e storage.Entry
			err := row.Scan(&e.Key, &e.Value)
			return e, err
		})
		if err != nil {
			return nil, dbError(err)
		}
		t.scans[dict] = base
		return base, nil
	}

	merged := make(map[string][]byte, len(base))
	for _, e := range base {
		merged[e.Key] = e.Value
	}
	for k, w := range t.writes {
		if k.dict != dict {
			continue
		}
		if w.deleted {
			delete(merged, k.key)
		} else {
			merged[k.key] = w.value
		}
	}

	entries := make([]storage.Entry, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, storage.Entry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return storage.ErrTxDone
	}
	t.done = true

	if err := t.store.checkOwner(ctx, t.pgtx); err != nil {
		_ = t.pgtx.Rollback(ctx)
		return err
	}
	if err := t.pgtx.Commit(ctx); err != nil {
		return dbError(err)
	}
	return nil
}

func (t *tx) Abort() {
	if t.done {
		return
	}
	t.done = true

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = t.pgtx.Rollback(ctx)
}
