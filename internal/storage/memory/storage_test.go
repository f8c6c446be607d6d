package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/storage"
	"github.com/mcoot/partyroom/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	suite.Run(t, &storagetest.StoreSuite{
		Open: func(t *testing.T) storage.Store {
			s, err := New(Options{LockTimeout: 100 * time.Millisecond})
			require.NoError(t, err)
			return s
		},
	})
}

func TestStoreContractWithWAL(t *testing.T) {
	suite.Run(t, &storagetest.StoreSuite{
		Open: func(t *testing.T) storage.Store {
			s, err := New(Options{
				WALPath:     filepath.Join(t.TempDir(), "partition.wal"),
				LockTimeout: 100 * time.Millisecond,
			})
			require.NoError(t, err)
			return s
		},
	})
}

func openClaimed(t *testing.T, opts Options) *Store {
	s, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, s.Claim(context.Background()))
	return s
}

func TestWALReplay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p0.wal")

	s := openClaimed(t, Options{WALPath: path})
	require.NoError(t, storage.Update(ctx, s, func(tx storage.Tx) error {
		if err := tx.Set(ctx, "rooms", "r1", []byte(`{"n":1}`)); err != nil {
			return err
		}
		return tx.Set(ctx, "rooms", "r2", []byte(`{"n":2}`))
	}))
	require.NoError(t, storage.Update(ctx, s, func(tx storage.Tx) error {
		_, err := tx.Remove(ctx, "rooms", "r1")
		return err
	}))
	require.NoError(t, s.Close())

	reopened := openClaimed(t, Options{WALPath: path})
	defer reopened.Close()

	require.NoError(t, storage.View(ctx, reopened, func(tx storage.Tx) error {
		entries, err := tx.Scan(ctx, "rooms")
		require.NoError(t, err)
		assert.Equal(t, []storage.Entry{{Key: "r2", Value: []byte(`{"n":2}`)}}, entries)
		return nil
	}))
}

func TestWALDropsTornRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p0.wal")

	s := openClaimed(t, Options{WALPath: path})
	require.NoError(t, storage.Update(ctx, s, func(tx storage.Tx) error {
		return tx.Set(ctx, "d", "k", []byte("v"))
	}))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"tx":"half","writes":[{"dict":"d","ke`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openClaimed(t, Options{WALPath: path})
	require.NoError(t, storage.Update(ctx, reopened, func(tx storage.Tx) error {
		return tx.Set(ctx, "d", "k2", []byte("v2"))
	}))
	require.NoError(t, reopened.Close())

	again := openClaimed(t, Options{WALPath: path})
	defer again.Close()
	require.NoError(t, storage.View(ctx, again, func(tx storage.Tx) error {
		n, err := tx.Count(ctx, "d")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	}))
}

func TestWALRejectsCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p0.wal")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o644))

	_, err := New(Options{WALPath: path})
	assert.Error(t, err)
}

func TestBeginRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	s, err := New(Options{})
	require.NoError(t, err)

	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, model.ErrNotOwner)

	require.NoError(t, s.Claim(ctx))
	require.NoError(t, s.Close())

	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.Claim(ctx), storage.ErrClosed)
}

func TestPointReadsSeeLatestCommit(t *testing.T) {
	ctx := context.Background()
	s := openClaimed(t, Options{})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Abort()

	require.NoError(t, storage.Update(ctx, s, func(other storage.Tx) error {
		return other.Set(ctx, "d", "k", []byte("v"))
	}))

	ok, err := tx.ContainsKey(ctx, "d", "k")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := tx.Scan(ctx, "d")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmptyDictionariesAreDropped(t *testing.T) {
	ctx := context.Background()
	s := openClaimed(t, Options{})

	require.NoError(t, storage.Update(ctx, s, func(tx storage.Tx) error {
		return tx.Set(ctx, "active/r1", "p1", []byte("{}"))
	}))
	require.NoError(t, storage.Update(ctx, s, func(tx storage.Tx) error {
		_, err := tx.Remove(ctx, "active/r1", "p1")
		return err
	}))

	s.mu.Lock()
	_, ok := s.root["active/r1"]
	s.mu.Unlock()
	assert.False(t, ok)
}
