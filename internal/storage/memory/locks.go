package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/storage"
)

type lockKey struct {
	dict string
	key  string
}

type lockEntry struct {
	owner    string
	released chan struct{}
}

// lockTable holds per-key update locks. Waiters block on the holder's
// released channel and race to take the lock when it closes.
type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[lockKey]*lockEntry)}
}

func (lt *lockTable) acquire(ctx context.Context, k lockKey, owner string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		lt.mu.Lock()
		e, ok := lt.locks[k]
		if !ok {
			lt.locks[k] = &lockEntry{owner: owner, released: make(chan struct{})}
			lt.mu.Unlock()
			return nil
		}
		if e.owner == owner {
			lt.mu.Unlock()
			return nil
		}
		wait := e.released
		lt.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return fmt.Errorf("%w: %s/%s", storage.ErrLockTimeout, k.dict, k.key)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", model.ErrTransient, ctx.Err())
		}
	}
}

func (lt *lockTable) release(k lockKey, owner string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if e, ok := lt.locks[k]; ok && e.owner == owner {
		delete(lt.locks, k)
		close(e.released)
	}
}
