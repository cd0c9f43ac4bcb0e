// Package cursor persists consumer-group positions for a queue in Pebble.
//
// A cursor is the last sequence a group has finished processing. Commits
// never move a cursor backwards, so replays after a crash can commit
// redundantly without harm.
package cursor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
)

// ErrInvalidName is returned for empty names or queue names containing '/'.
var ErrInvalidName = errors.New("cursor: invalid name")

// Key layout: cursor/{queue}/{group} -> seq_be8

var cursorPrefix = []byte("cursor/")

func queuePrefix(queue string) []byte {
	k := make([]byte, 0, len(cursorPrefix)+len(queue)+1)
	k = append(k, cursorPrefix...)
	k = append(k, queue...)
	return append(k, '/')
}

func keyCursor(queue, group string) []byte {
	return append(queuePrefix(queue), group...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// Store reads and commits cursors of one queue.
type Store struct {
	db    *pebblestore.DB
	queue string
	mu    sync.Mutex // serialises read-compare-write in Commit
}

// NewStore returns the cursor store for queue.
func NewStore(db *pebblestore.DB, queue string) (*Store, error) {
	if queue == "" || strings.Contains(queue, "/") {
		return nil, fmt.Errorf("%w: queue %q", ErrInvalidName, queue)
	}
	return &Store{db: db, queue: queue}, nil
}

// Commit records seq as processed by group. A seq at or below the stored
// cursor is ignored.
func (s *Store) Commit(ctx context.Context, group string, seq uint64) error {
	if group == "" {
		return fmt.Errorf("%w: empty group", ErrInvalidName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyCursor(s.queue, group)
	cur, err := s.db.Get(key)
	switch {
	case err == nil && len(cur) >= 8:
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return fmt.Errorf("cursor: read %s: %w", group, err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, appendBE8(nil, seq), nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Get returns the committed cursor of group.
func (s *Store) Get(group string) (uint64, bool, error) {
	cur, err := s.db.Get(keyCursor(s.queue, group))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cursor: read %s: %w", group, err)
	}
	if len(cur) < 8 {
		return 0, false, fmt.Errorf("cursor: %s: short value", group)
	}
	return binary.BigEndian.Uint64(cur[:8]), true, nil
}

// Resume returns the sequence group should read next: one past its cursor,
// or def when the group has never committed.
func (s *Store) Resume(group string, def uint64) (uint64, error) {
	seq, ok, err := s.Get(group)
	if err != nil || !ok {
		return def, err
	}
	return seq + 1, nil
}

// List returns every group's cursor.
func (s *Store) List() (map[string]uint64, error) {
	prefix := queuePrefix(s.queue)
	out := make(map[string]uint64)
	err := s.db.ScanPrefix(prefix, func(k, v []byte) error {
		if len(v) < 8 {
			return nil
		}
		out[string(k[len(prefix):])] = binary.BigEndian.Uint64(v[:8])
		return nil
	})
	return out, err
}

// Delete forgets group's cursor.
func (s *Store) Delete(group string) error {
	return s.db.Delete(keyCursor(s.queue, group))
}
