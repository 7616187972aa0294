// Package jsonldb provides a small, concurrent-safe, JSONL-backed key-value
// table.
//
// Rows live in a JSON Lines file and are fully cached in memory. The table
// uses pessimistic locking: every mutation holds the write lock for the whole
// read-modify-write cycle, so operations always succeed without retry loops.
// Throughput under contention is poor, which is fine for local staging files
// with a single writer.
//
// Rows that fail to decode are skipped on load instead of failing the open;
// a foreign or corrupt line must not take the whole store down.
package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Keyer is implemented by row types that know their own primary key.
type Keyer interface {
	RowKey() string
}

// Table stores rows of one type keyed by their RowKey.
type Table[T Keyer] struct {
	path string
	mu   sync.RWMutex
	rows map[string]T
}

// Open creates a Table and loads all rows from path. A missing file is an
// empty table.
func Open[T Keyer](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the backing file path.
func (t *Table[T]) Path() string {
	return t.path
}

// Reload re-reads the backing file, replacing the in-memory cache.
func (t *Table[T]) Reload() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := make(map[string]T)
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = rows
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	// No line length cap: a single row can be larger than any fixed scanner
	// buffer (asset batches carry base64 file contents).
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, readErr := r.ReadBytes('\n')
		line = bytes.TrimSuffix(line, []byte{'\n'})
		if len(line) > 0 {
			var row T
			if err := json.Unmarshal(line, &row); err != nil {
				slog.Warn("skipping undecodable row", "path", t.path, "err", err)
			} else if row.RowKey() == "" {
				slog.Warn("skipping row without key", "path", t.path)
			} else {
				rows[row.RowKey()] = row
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read table file %s: %w", t.path, readErr)
		}
	}

	t.rows = rows
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns the row with the given key.
func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	return row, ok
}

// All returns all rows sorted by key.
func (t *Table[T]) All() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.rows))
	for _, key := range slices.Sorted(maps.Keys(t.rows)) {
		out = append(out, t.rows[key])
	}
	return out
}

// Put inserts or replaces the row with the same key, then persists.
func (t *Table[T]) Put(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, had := t.rows[row.RowKey()]
	t.rows[row.RowKey()] = row
	if err := t.save(); err != nil {
		if had {
			t.rows[row.RowKey()] = prev
		} else {
			delete(t.rows, row.RowKey())
		}
		return err
	}
	return nil
}

// Delete removes the row with the given key, then persists. Returns whether
// a row was removed.
func (t *Table[T]) Delete(key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.rows[key]
	if !ok {
		return false, nil
	}
	delete(t.rows, key)
	if err := t.save(); err != nil {
		t.rows[key] = prev
		return false, err
	}
	return true, nil
}

// DeleteAll removes all rows with the given keys in one persisted write.
func (t *Table[T]) DeleteAll(keys []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := make(map[string]T)
	for _, key := range keys {
		if prev, ok := t.rows[key]; ok {
			removed[key] = prev
			delete(t.rows, key)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := t.save(); err != nil {
		maps.Copy(t.rows, removed)
		return err
	}
	return nil
}

// save rewrites the whole file atomically via a temp file and rename.
// Caller must hold the write lock.
func (t *Table[T]) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp table file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	for _, key := range slices.Sorted(maps.Keys(t.rows)) {
		data, err := json.Marshal(t.rows[key])
		if err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to marshal row %s: %w", key, err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush table file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp table file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}
