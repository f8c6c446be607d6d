package memory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortWriter writes half of the next record and then fails
type shortWriter struct {
	*os.File
}

func (f shortWriter) Write(b []byte) (int, error) {
	n, _ := f.File.Write(b[:len(b)/2])
	return n, errors.New("disk full")
}

func TestWALFailedAppendLeavesLogReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms-0.wal")

	w, records, err := openWAL(path)
	require.NoError(t, err)
	require.Empty(t, records)

	first := walRecord{TxID: "tx-1", Writes: []walWrite{{Dict: "rooms", Key: "r1", Value: []byte(`{"num_players":1}`)}}}
	require.NoError(t, w.append(first))

	f := w.file.(*os.File)
	w.file = shortWriter{File: f}
	err = w.append(walRecord{TxID: "tx-2", Writes: []walWrite{{Dict: "rooms", Key: "r2", Deleted: true}}})
	require.Error(t, err)
	w.file = f

	third := walRecord{TxID: "tx-3", Writes: []walWrite{{Dict: "rooms", Key: "r3", Value: []byte(`{"num_players":2}`)}}}
	require.NoError(t, w.append(third))
	require.NoError(t, w.close())

	w, records, err = openWAL(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.close() })

	require.Len(t, records, 2)
	assert.Equal(t, "tx-1", records[0].TxID)
	assert.Equal(t, "tx-3", records[1].TxID)
}
