// Package memory is the in-process storage backend: a copy-on-write map per
// dictionary, a lock table and an optional write-ahead log.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/storage"
)

// DefaultLockTimeout bounds how long an update lock is waited for
const DefaultLockTimeout = 5 * time.Second

// Options configures a memory store
type Options struct {
	// WALPath enables durability when set; the log is replayed on open
	WALPath     string
	LockTimeout time.Duration
}

type dictionary map[string][]byte

// Store is one partition held in memory. Published dictionaries are never
// mutated; a commit replaces the ones it touched.
type Store struct {
	mu     sync.Mutex
	root   map[string]dictionary
	owned  bool
	closed bool

	locks       *lockTable
	wal         *wal
	lockTimeout time.Duration
}

// Ensure Store implements the interface
var _ storage.Store = (*Store)(nil)

// New creates a store, replaying the write-ahead log if one is configured
func New(opts Options) (*Store, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}

	s := &Store{
		root:        make(map[string]dictionary),
		locks:       newLockTable(),
		lockTimeout: opts.LockTimeout,
	}

	if opts.WALPath != "" {
		w, records, err := openWAL(opts.WALPath)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			s.root = apply(s.root, rec.Writes)
		}
		s.wal = w
	}

	return s, nil
}

func (s *Store) Claim(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.owned = true
	return nil
}

func (s *Store) Disown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = false
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.owned = false
	if s.wal != nil {
		return s.wal.close()
	}
	return nil
}

func (s *Store) Begin(_ context.Context) (storage.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	if !s.owned {
		return nil, model.ErrNotOwner
	}

	return &tx{
		store:    s,
		id:       uuid.NewString(),
		snapshot: s.root,
		writes:   make(map[lockKey]walWrite),
		held:     make(map[lockKey]struct{}),
	}, nil
}

// latest returns the current committed view of dict
func (s *Store) latest(dict string) dictionary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root[dict]
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if !s.owned {
		return fmt.Errorf("%w: commit rejected", model.ErrNotOwner)
	}
	if len(t.writes) == 0 {
		return nil
	}

	writes := t.sortedWrites()
	if s.wal != nil {
		if err := s.wal.append(walRecord{TxID: t.id, Writes: writes}); err != nil {
			return fmt.Errorf("%w: writing wal: %v", model.ErrTransient, err)
		}
	}
	s.root = apply(s.root, writes)
	return nil
}

// apply returns a new root with writes applied, copying only touched dictionaries
func apply(root map[string]dictionary, writes []walWrite) map[string]dictionary {
	next := make(map[string]dictionary, len(root))
	for name, d := range root {
		next[name] = d
	}

	copied := make(map[string]bool)
	for _, w := range writes {
		if !copied[w.Dict] {
			d := make(dictionary, len(next[w.Dict])+1)
			for k, v := range next[w.Dict] {
				d[k] = v
			}
			next[w.Dict] = d
			copied[w.Dict] = true
		}
		if w.Deleted {
			delete(next[w.Dict], w.Key)
		} else {
			next[w.Dict][w.Key] = w.Value
		}
	}

	for name, d := range next {
		if len(d) == 0 {
			delete(next, name)
		}
	}
	return next
}

// tx reads point lookups from the latest committed state so update locks
// always observe the previous holder's writes. Scan reads the snapshot taken
// at Begin.
type tx struct {
	store    *Store
	id       string
	snapshot map[string]dictionary
	writes   map[lockKey]walWrite
	held     map[lockKey]struct{}
	done     bool
}

func (t *tx) lock(ctx context.Context, dict, key string) error {
	k := lockKey{dict: dict, key: key}
	if _, ok := t.held[k]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, k, t.id, t.store.lockTimeout); err != nil {
		return err
	}
	t.held[k] = struct{}{}
	return nil
}

func (t *tx) lookup(dict, key string) ([]byte, bool) {
	if w, ok := t.writes[lockKey{dict: dict, key: key}]; ok {
		return w.Value, !w.Deleted
	}
	v, ok := t.store.latest(dict)[key]
	return v, ok
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
	v, ok := t.lookup(dict, key)
	return clone(v), ok, nil
}

func (t *tx) Set(ctx context.Context, dict, key string, value []byte) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.lock(ctx, dict, key); err != nil {
		return err
	}
	t.writes[lockKey{dict: dict, key: key}] = walWrite{Dict: dict, Key: key, Value: clone(value)}
	return nil
}

func (t *tx) Add(ctx context.Context, dict, key string, value []byte) error {
	if t.done {
		return storage.ErrTxDone
	}
	if err := t.lock(ctx, dict, key); err != nil {
		return err
	}
	if _, ok := t.lookup(dict, key); ok {
		return fmt.Errorf("%w: %s/%s", storage.ErrDuplicateKey, dict, key)
	}
	t.writes[lockKey{dict: dict, key: key}] = walWrite{Dict: dict, Key: key, Value: clone(value)}
	return nil
}

func (t *tx) Remove(ctx context.Context, dict, key string) (bool, error) {
	if t.done {
		return false, storage.ErrTxDone
	}
	if err := t.lock(ctx, dict, key); err != nil {
		return false, err
	}
	_, ok := t.lookup(dict, key)
	if ok {
		t.writes[lockKey{dict: dict, key: key}] = walWrite{Dict: dict, Key: key, Deleted: true}
	}
	return ok, nil
}

func (t *tx) ContainsKey(_ context.Context, dict, key string) (bool, error) {
	if t.done {
		return false, storage.ErrTxDone
	}
	_, ok := t.lookup(dict, key)
	return ok, nil
}

func (t *tx) Count(_ context.Context, dict string) (int, error) {
	if t.done {
		return 0, storage.ErrTxDone
	}
	return len(t.merged(t.store.latest(dict), dict)), nil
}

func (t *tx) Scan(_ context.Context, dict string) ([]storage.Entry, error) {
	if t.done {
		return nil, storage.ErrTxDone
	}

	d := t.merged(t.snapshot[dict], dict)
	entries := make([]storage.Entry, 0, len(d))
	for k, v := range d {
		entries = append(entries, storage.Entry{Key: k, Value: clone(v)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// merged overlays this transaction's writes to dict onto base
func (t *tx) merged(base dictionary, dict string) dictionary {
	out := make(dictionary, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, w := range t.writes {
		if k.dict != dict {
			continue
		}
		if w.Deleted {
			delete(out, k.key)
		} else {
			out[k.key] = w.Value
		}
	}
	return out
}

func (t *tx) sortedWrites() []walWrite {
	out := make([]walWrite, 0, len(t.writes))
	for _, w := range t.writes {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dict != out[j].Dict {
			return out[i].Dict < out[j].Dict
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return storage.ErrTxDone
	}
	defer t.finish()
	return t.store.commit(t)
}

func (t *tx) Abort() {
	if t.done {
		return
	}
	t.finish()
}

func (t *tx) finish() {
	t.done = true
	for k := range t.held {
		t.store.locks.release(k, t.id)
	}
	t.held = nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
