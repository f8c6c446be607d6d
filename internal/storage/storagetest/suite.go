// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/storage"
)

// StoreSuite runs the transactional store contract against one backend.
// Open must return a fresh, empty store whose update-lock timeout is well
// under a second.
type StoreSuite struct {
	suite.Suite
	Open func(t *testing.T) storage.Store

	store storage.Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.Open(s.T())
	s.Require().NoError(s.store.Claim(s.ctx))
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *StoreSuite) put(dict, key, value string) {
	s.Require().NoError(storage.Update(s.ctx, s.store, func(tx storage.Tx) error {
		return tx.Set(s.ctx, dict, key, []byte(value))
	}))
}

func (s *StoreSuite) read(dict, key string) (string, bool) {
	var (
		v  []byte
		ok bool
	)
	s.Require().NoError(storage.View(s.ctx, s.store, func(tx storage.Tx) error {
		var err error
		v, ok, err = tx.Get(s.ctx, dict, key, storage.LockNone)
		return err
	}))
	return string(v), ok
}

func (s *StoreSuite) TestGetAbsent() {
	_, ok := s.read("d", "missing")
	s.False(ok)
}

func (s *StoreSuite) TestWritesVisibleAfterCommitOnly() {
	tx, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(tx.Set(s.ctx, "d", "k", []byte("v1")))

	v, ok, err := tx.Get(s.ctx, "d", "k", storage.LockNone)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("v1", string(v))

	_, ok = s.read("d", "k")
	s.False(ok, "uncommitted write leaked")

	s.Require().NoError(tx.Commit(s.ctx))

	got, ok := s.read("d", "k")
	s.True(ok)
	s.Equal("v1", got)
}

func (s *StoreSuite) TestAbortDiscardsWrites() {
	tx, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(tx.Set(s.ctx, "d", "k", []byte("v")))
	tx.Abort()

	_, ok := s.read("d", "k")
	s.False(ok)
}

func (s *StoreSuite) TestUpdateAbortsOnError() {
	boom := errors.New("boom")
	err := storage.Update(s.ctx, s.store, func(tx storage.Tx) error {
		if err := tx.Set(s.ctx, "d", "k", []byte("v")); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, ok := s.read("d", "k")
	s.False(ok)
}

func (s *StoreSuite) TestAddRejectsDuplicates() {
	s.put("d", "k", "v")

	err := storage.Update(s.ctx, s.store, func(tx storage.Tx) error {
		return tx.Add(s.ctx, "d", "k", []byte("other"))
	})
	s.ErrorIs(err, storage.ErrDuplicateKey)

	err = storage.Update(s.ctx, s.store, func(tx storage.Tx) error {
		if err := tx.Add(s.ctx, "d", "new", []byte("a")); err != nil {
			return err
		}
		return tx.Add(s.ctx, "d", "new", []byte("b"))
	})
	s.ErrorIs(err, storage.ErrDuplicateKey)

	got, _ := s.read("d", "k")
	s.Equal("v", got)
	_, ok := s.read("d", "new")
	s.False(ok)
}

func (s *StoreSuite) TestRemove() {
	s.put("d", "k", "v")

	var removed, again bool
	s.Require().NoError(storage.Update(s.ctx, s.store, func(tx storage.Tx) error {
		var err error
		if removed, err = tx.Remove(s.ctx, "d", "k"); err != nil {
			return err
		}
		again, err = tx.Remove(s.ctx, "d", "k")
		return err
	}))
	s.True(removed)
	s.False(again)

	_, ok := s.read("d", "k")
	s.False(ok)
}

func (s *StoreSuite) TestContainsKeyAndCountSeeOwnWrites() {
	s.put("d", "a", "1")
	s.put("d", "b", "2")

	s.Require().NoError(storage.View(s.ctx, s.store, func(tx storage.Tx) error {
		n, err := tx.Count(s.ctx, "d")
		s.Require().NoError(err)
		s.Equal(2, n)

		s.Require().NoError(tx.Set(s.ctx, "d", "c", []byte("3")))
		_, err = tx.Remove(s.ctx, "d", "a")
		s.Require().NoError(err)

		n, err = tx.Count(s.ctx, "d")
		s.Require().NoError(err)
		s.Equal(2, n)

		ok, err := tx.ContainsKey(s.ctx, "d", "a")
		s.Require().NoError(err)
		s.False(ok)

		ok, err = tx.ContainsKey(s.ctx, "d", "c")
		s.Require().NoError(err)
		s.True(ok)
		return nil
	}))
}

func (s *StoreSuite) TestScanOrderedAndStable() {
	s.put("d", "b", "2")
	s.put("d", "a", "1")
	s.put("other", "z", "9")

	tx, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	defer tx.Abort()

	first, err := tx.Scan(s.ctx, "d")
	s.Require().NoError(err)
	s.Equal([]storage.Entry{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}, first)

	// A concurrent commit does not change what this transaction scans
	s.put("d", "c", "3")

	second, err := tx.Scan(s.ctx, "d")
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *StoreSuite) TestScanIncludesOwnWrites() {
	s.put("d", "a", "1")
	s.put("d", "b", "2")

	s.Require().NoError(storage.View(s.ctx, s.store, func(tx storage.Tx) error {
		s.Require().NoError(tx.Set(s.ctx, "d", "c", []byte("3")))
		_, err := tx.Remove(s.ctx, "d", "a")
		s.Require().NoError(err)

		entries, err := tx.Scan(s.ctx, "d")
		s.Require().NoError(err)
		s.Equal([]storage.Entry{{Key: "b", Value: []byte("2")}, {Key: "c", Value: []byte("3")}}, entries)
		return nil
	}))
}

func (s *StoreSuite) TestScanEmptyDict() {
	s.Require().NoError(storage.View(s.ctx, s.store, func(tx storage.Tx) error {
		entries, err := tx.Scan(s.ctx, "nothing")
		s.Require().NoError(err)
		s.Empty(entries)
		return nil
	}))
}

func (s *StoreSuite) TestUpdateLockSerializesWriters() {
	s.put("d", "counter", "0")

	tx1, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	_, _, err = tx1.Get(s.ctx, "d", "counter", storage.LockUpdate)
	s.Require().NoError(err)

	got := make(chan string, 1)
	go func() {
		tx2, err := s.store.Begin(s.ctx)
		if err != nil {
			got <- "begin: " + err.Error()
			return
		}
		defer tx2.Abort()
		v, _, err := tx2.Get(s.ctx, "d", "counter", storage.LockUpdate)
		if err != nil {
			got <- "get: " + err.Error()
			return
		}
		got <- string(v)
	}()

	select {
	case v := <-got:
		s.FailNow("second update-lock reader was not blocked", v)
	case <-time.After(50 * time.Millisecond):
	}

	s.Require().NoError(tx1.Set(s.ctx, "d", "counter", []byte("1")))
	s.Require().NoError(tx1.Commit(s.ctx))

	select {
	case v := <-got:
		s.Equal("1", v)
	case <-time.After(2 * time.Second):
		s.FailNow("second update-lock reader never resumed")
	}
}

func (s *StoreSuite) TestLockWaitTimesOut() {
	tx1, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	defer tx1.Abort()
	s.Require().NoError(tx1.Set(s.ctx, "d", "k", []byte("held")))

	tx2, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	defer tx2.Abort()

	_, _, err = tx2.Get(s.ctx, "d", "k", storage.LockUpdate)
	s.ErrorIs(err, model.ErrTransient)
}

func (s *StoreSuite) TestPlainReadsDoNotBlock() {
	s.put("d", "k", "v")

	tx1, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	defer tx1.Abort()
	_, _, err = tx1.Get(s.ctx, "d", "k", storage.LockUpdate)
	s.Require().NoError(err)

	got, ok := s.read("d", "k")
	s.True(ok)
	s.Equal("v", got)
}

func (s *StoreSuite) TestLocksReleasedOnAbort() {
	tx1, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	_, _, err = tx1.Get(s.ctx, "d", "k", storage.LockUpdate)
	s.Require().NoError(err)
	tx1.Abort()

	s.put("d", "k", "v")
}

func (s *StoreSuite) TestCommitAfterDisownFails() {
	tx, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(tx.Set(s.ctx, "d", "k", []byte("v")))

	s.Require().NoError(s.store.Disown(s.ctx))

	err = tx.Commit(s.ctx)
	s.ErrorIs(err, model.ErrNotOwner)
	s.True(model.IsRetryable(err))

	s.Require().NoError(s.store.Claim(s.ctx))
	_, ok := s.read("d", "k")
	s.False(ok)
}

func (s *StoreSuite) TestFinishedTxRejectsCalls() {
	tx, err := s.store.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(tx.Commit(s.ctx))

	_, _, err = tx.Get(s.ctx, "d", "k", storage.LockNone)
	s.ErrorIs(err, storage.ErrTxDone)
	s.ErrorIs(tx.Set(s.ctx, "d", "k", nil), storage.ErrTxDone)
	s.ErrorIs(tx.Commit(s.ctx), storage.ErrTxDone)
	tx.Abort()
}
