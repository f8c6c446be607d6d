// Package redis is the Redis storage backend. Each dictionary is a HASH,
// update locks are expiring keys holding the transaction's token, and
// commits are MULTI/EXEC blocks guarded by WATCH on the partition owner.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/storage"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1]
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockBusy = errors.New("lock busy")

// Connect opens and verifies a client shared by every partition's store
func Connect(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Store is one partition of one service kept in Redis
type Store struct {
	client    *redis.Client
	cfg       Config
	service   string
	partition int
	node      string
	closed    atomic.Bool
}

// Ensure Store implements the interface
var _ storage.Store = (*Store)(nil)

// New creates the store for a partition. node identifies this process as
// the partition owner; the client is shared and not closed by the store.
func New(client *redis.Client, cfg Config, service string, partition int, node string) *Store {
	return &Store{
		client:    client,
		cfg:       cfg,
		service:   service,
		partition: partition,
		node:      node,
	}
}

func transient(err error) error {
	return fmt.Errorf("%w: redis: %v", model.ErrTransient, err)
}

func (s *Store) Claim(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if err := s.client.Set(ctx, s.ownerKey(), s.node, 0).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *Store) Disown(ctx context.Context) error {
	if err := compareAndDelete.Run(ctx, s.client, []string{s.ownerKey()}, s.node).Err(); err != nil {
		return transient(err)
	}
	return nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) checkOwner(ctx context.Context, get func(ctx context.Context, key string) *redis.StringCmd) error {
	owner, err := get(ctx, s.ownerKey()).Result()
	if errors.Is(err, redis.Nil) || (err == nil && owner != s.node) {
		return fmt.Errorf("%w: %s partition %d", model.ErrNotOwner, s.service, s.partition)
	}
	if err != nil {
		return transient(err)
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	if err := s.checkOwner(ctx, s.client.Get); err != nil {
		return nil, err
	}
	return &tx{
		store:  s,
		token:  uuid.NewString(),
		writes: make(map[entryKey]write),
		held:   make(map[entryKey]struct{}),
		scans:  make(map[string]map[string][]byte),
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

// tx buffers writes locally until Commit. The first Scan of a dictionary is
// cached so later scans in the same transaction are stable.
type tx struct {
	store  *Store
	token  string
	writes map[entryKey]write
	held   map[entryKey]struct{}
	scans  map[string]map[string][]byte
	done   bool
}

func (t *tx) lock(ctx context.Context, dict, key string) error {
	k := entryKey{dict: dict, key: key}
	if _, ok := t.held[k]; ok {
		return nil
	}

	lk := t.store.lockKey(dict, key)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = t.store.cfg.LockTimeout
	b.Reset()

	err := backoff.Retry(func() error {
		ok, err := t.store.client.SetNX(ctx, lk, t.token, t.store.cfg.LockTTL).Result()
		if err != nil {
			return backoff.Permanent(transient(err))
		}
		if !ok {
			return errLockBusy
		}
		return nil
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
		t.held[k] = struct{}{}
		return nil
	case errors.Is(err, errLockBusy):
		return fmt.Errorf("%w: %s/%s", storage.ErrLockTimeout, dict, key)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return transient(err)
	default:
		return err
	}
}

func (t *tx) lookup(ctx context.Context, dict, key string) ([]byte, bool, error) {
	if w, ok := t.writes[entryKey{dict: dict, key: key}]; ok {
		return w.value, !w.deleted, nil
	}
	v, err := t.store.client.HGet(ctx, t.store.dictKey(dict), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, transient(err)
	}
	return v, true, nil
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
	_, ok, err := t.lookup(ctx, dict, key)
	if err != nil {
		return err
	}
	if ok {
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
	_, ok, err := t.lookup(ctx, dict, key)
	if err != nil || !ok {
		return false, err
	}
	t.writes[entryKey{dict: dict, key: key}] = write{deleted: true}
	return true, nil
}

func (t *tx) ContainsKey(ctx context.Context, dict, key string) (bool, error) {
	if t.done {
		return false, storage.ErrTxDone
	}
	if w, ok := t.writes[entryKey{dict: dict, key: key}]; ok {
		return !w.deleted, nil
	}
	ok, err := t.store.client.HExists(ctx, t.store.dictKey(dict), key).Result()
	if err != nil {
		return false, transient(err)
	}
	return ok, nil
}

func (t *tx) Count(ctx context.Context, dict string) (int, error) {
	if t.done {
		return 0, storage.ErrTxDone
	}
	keys, err := t.store.client.HKeys(ctx, t.store.dictKey(dict)).Result()
	if err != nil {
		return 0, transient(err)
	}

	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	for k, w := range t.writes {
		if k.dict == dict {
			present[k.key] = !w.deleted
		}
	}

	n := 0
	for _, ok := range present {
		if ok {
			n++
		}
	}
	return n, nil
}

func (t *tx) Scan(ctx context.Context, dict string) ([]storage.Entry, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}

	base, ok := t.scans[dict]
	if !ok {
		raw, err := t.store.client.HGetAll(ctx, t.store.dictKey(dict)).Result()
		if err != nil {
			return nil, transient(err)
		}
		base = make(map[string][]byte, len(raw))
		for k, v := range raw {
			base[k] = []byte(v)
		}
		t.scans[dict] = base
	}

	merged := make(map[string][]byte, len(base))
	for k, v := range base {
		merged[k] = v
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
	defer t.finish()

	if t.store.closed.Load() {
		return storage.ErrClosed
	}

	lockKeys := make([]string, 0, len(t.held))
	for k := range t.held {
		lockKeys = append(lockKeys, t.store.lockKey(k.dict, k.key))
	}
	watched := append([]string{t.store.ownerKey()}, lockKeys...)

	err := t.store.client.Watch(ctx, func(rtx *redis.Tx) error {
		if err := t.store.checkOwner(ctx, rtx.Get); err != nil {
			return err
		}

		if len(lockKeys) > 0 {
			tokens, err := rtx.MGet(ctx, lockKeys...).Result()
			if err != nil {
				return transient(err)
			}
			for i, tok := range tokens {
				if tok != t.token {
					return fmt.Errorf("%w: update lock %s expired", model.ErrTransient, lockKeys[i])
				}
			}
		}

		if len(t.writes) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, w := range t.writes {
				if w.deleted {
					pipe.HDel(ctx, t.store.dictKey(k.dict), k.key)
				} else {
					pipe.HSet(ctx, t.store.dictKey(k.dict), k.key, w.value)
				}
			}
			return nil
		})
		if err != nil {
			return transient(err)
		}
		return nil
	}, watched...)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: partition changed during commit", model.ErrTransient)
	}
	if err != nil && !errors.Is(err, model.ErrNotOwner) && !errors.Is(err, model.ErrTransient) {
		return transient(err)
	}
	return err
}

func (t *tx) Abort() {
	if t.done {
		return
	}
	t.finish()
}

func (t *tx) finish() {
	t.done = true
	if len(t.held) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Locks that fail to release expire after LockTTL
	for k := range t.held {
		_ = compareAndDelete.Run(ctx, t.store.client, []string{t.store.lockKey(k.dict, k.key)}, t.token).Err()
	}
	t.held = nil
}
