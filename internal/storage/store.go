// Package storage defines the per-partition transactional key-value store
// both session services are built on.
//
// A Store holds the named dictionaries of exactly one partition. All reads
// and writes happen inside a Tx, and every Tx must end in Commit or Abort.
// Use Update and View rather than managing transactions by hand.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcoot/partyroom/internal/model"
)

// LockMode selects whether a read reserves the key for a later write
type LockMode int

const (
	// LockNone reads without blocking other transactions
	LockNone LockMode = iota
	// LockUpdate takes the key's update lock until the transaction ends
	LockUpdate
)

var (
	// ErrDuplicateKey is returned by Add when the key is already present
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrTxDone is returned by any call on a committed or aborted transaction
	ErrTxDone = errors.New("transaction already finished")

	// ErrLockTimeout means an update lock could not be acquired in time
	ErrLockTimeout = fmt.Errorf("%w: update lock wait timed out", model.ErrTransient)

	// ErrClosed is returned by a store that has been closed
	ErrClosed = fmt.Errorf("%w: store closed", model.ErrNotOwner)
)

// Entry is one key-value pair returned by Scan
type Entry struct {
	Key   string
	Value []byte
}

// Tx is a transaction over the dictionaries of one partition. Writes take
// the key's update lock implicitly and are visible to the same transaction
// immediately, to others only after Commit.
type Tx interface {
	Get(ctx context.Context, dict, key string, lock LockMode) ([]byte, bool, error)
	Set(ctx context.Context, dict, key string, value []byte) error
	Add(ctx context.Context, dict, key string, value []byte) error
	Remove(ctx context.Context, dict, key string) (bool, error)
	ContainsKey(ctx context.Context, dict, key string) (bool, error)
	Count(ctx context.Context, dict string) (int, error)

	// Scan returns the dictionary ordered by key. Repeated scans of the same
	// dictionary within one transaction see the same committed data.
	Scan(ctx context.Context, dict string) ([]Entry, error)

	// Commit applies every write atomically. It fails with model.ErrNotOwner
	// when the partition has moved and with model.ErrTransient when the
	// backend is unavailable. The transaction is finished either way.
	Commit(ctx context.Context) error

	// Abort discards all writes and releases locks. Safe to call after Commit.
	Abort()
}

// Store is one partition's durable dictionary set
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// Claim marks this process as the partition's owner
	Claim(ctx context.Context) error

	// Disown gives up ownership; later commits fail with model.ErrNotOwner
	Disown(ctx context.Context) error

	Close() error
}

// Update runs fn in a transaction and commits it if fn succeeds
func Update(ctx context.Context, s Store, fn func(tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit(ctx)
}

// View runs fn in a transaction that is always aborted
func View(ctx context.Context, s Store, fn func(tx Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Abort()
	return fn(tx)
}
