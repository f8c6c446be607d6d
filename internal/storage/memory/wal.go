package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

type walWrite struct {
	Dict    string `json:"dict"`
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

type walRecord struct {
	TxID   string     `json:"tx"`
	Writes []walWrite `json:"writes"`
}

// walFile is the part of *os.File the log writes through
type walFile interface {
	io.Writer
	io.Seeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// wal is an append-only log of committed transactions, one JSON object per
// line. A record is durable once append returns. A failed append leaves the
// file as it was.
type wal struct {
	mu   sync.Mutex
	file walFile
}

func openWAL(path string) (*wal, []walRecord, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening wal: %w", err)
	}

	records, err := readWAL(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("seeking wal: %w", err)
	}
	return &wal{file: f}, records, nil
}

// readWAL decodes every complete record. A torn final line from a crash
// mid-append is dropped and truncated away.
func readWAL(f *os.File) ([]walRecord, error) {
	var (
		records []walRecord
		offset  int64
	)
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				if terr := f.Truncate(offset); terr != nil {
					return nil, fmt.Errorf("truncating torn wal record: %w", terr)
				}
			}
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading wal: %w", err)
		}

		var rec walRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("corrupt wal record at offset %d: %w", offset, err)
		}
		records = append(records, rec)
		offset += int64(len(line))
	}
}

func (w *wal) append(rec walRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	offset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating wal end: %w", err)
	}
	if _, err := w.file.Write(line); err != nil {
		return w.rollback(offset, err)
	}
	if err := w.file.Sync(); err != nil {
		return w.rollback(offset, err)
	}
	return nil
}

// rollback cuts a partly written record off the end of the log
func (w *wal) rollback(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		return errors.Join(cause, fmt.Errorf("truncating wal: %w", err))
	}
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return errors.Join(cause, fmt.Errorf("seeking wal: %w", err))
	}
	return cause
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
