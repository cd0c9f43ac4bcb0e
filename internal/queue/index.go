package queue

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

const (
	indexMagic      = "FLQI"
	indexVersion    = 1
	indexHeaderSize = 32
	indexEntrySize  = 24
)

// IndexEntry maps a sequence to the byte offset of its frame within the
// segment, with the time the frame was written.
type IndexEntry struct {
	Sequence  uint64
	Offset    int64
	Timestamp uint64 // µs since epoch
}

func encodeIndexHeader(interval uint64) []byte {
	b := make([]byte, indexHeaderSize)
	copy(b, indexMagic)
	binary.LittleEndian.PutUint32(b[4:], indexVersion)
	binary.LittleEndian.PutUint64(b[8:], interval)
	return b
}

func appendIndexEntry(dst []byte, e IndexEntry) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.Sequence)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Offset))
	return binary.LittleEndian.AppendUint64(dst, e.Timestamp)
}

// parseIndex decodes an index file image. A trailing partial entry, left by
// a crash mid-append, is ignored.
func parseIndex(b []byte) (interval uint64, entries []IndexEntry, err error) {
	if len(b) < indexHeaderSize || string(b[:4]) != indexMagic {
		return 0, nil, fmt.Errorf("%w: bad index header", ErrIndex)
	}
	if v := binary.LittleEndian.Uint32(b[4:]); v != indexVersion {
		return 0, nil, fmt.Errorf("%w: index version %d", ErrIndex, v)
	}
	interval = binary.LittleEndian.Uint64(b[8:])
	body := b[indexHeaderSize:]
	n := len(body) / indexEntrySize
	entries = make([]IndexEntry, 0, n)
	for i := 0; i < n; i++ {
		e := body[i*indexEntrySize:]
		entries = append(entries, IndexEntry{
			Sequence:  binary.LittleEndian.Uint64(e),
			Offset:    int64(binary.LittleEndian.Uint64(e[8:])),
			Timestamp: binary.LittleEndian.Uint64(e[16:]),
		})
	}
	return interval, entries, nil
}

func readIndexFile(path string) ([]IndexEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	_, entries, err := parseIndex(b)
	return entries, err
}

// searchIndex returns the greatest entry whose sequence is <= target.
func searchIndex(entries []IndexEntry, target uint64) (IndexEntry, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Sequence > target })
	if i == 0 {
		return IndexEntry{}, false
	}
	return entries[i-1], true
}

// indexWriter appends entries to a segment's index file. Owned by the writer
// loop.
type indexWriter struct {
	f        *os.File
	interval uint64
	size     int64
	buf      []byte
}

func createIndex(path string, interval uint64) (*indexWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrIndex, path, err)
	}
	if _, err := f.WriteAt(encodeIndexHeader(interval), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: write header: %w", ErrIndex, err)
	}
	return &indexWriter{f: f, interval: interval, size: indexHeaderSize}, nil
}

// rewriteIndex replaces the index file at path with exactly entries.
func rewriteIndex(path string, interval uint64, entries []IndexEntry) (*indexWriter, error) {
	w, err := createIndex(path, interval)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.append(e); err != nil {
			_ = w.close()
			return nil, err
		}
	}
	if err := w.sync(); err != nil {
		_ = w.close()
		return nil, err
	}
	return w, nil
}

// openIndexForAppend reopens an existing index, keeping only the first keep
// entries.
func openIndexForAppend(path string, interval uint64, keep int) (*indexWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIndex, path, err)
	}
	size := int64(indexHeaderSize + keep*indexEntrySize)
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: truncate %s: %w", ErrIndex, path, err)
	}
	return &indexWriter{f: f, interval: interval, size: size}, nil
}

func (w *indexWriter) append(e IndexEntry) error {
	w.buf = appendIndexEntry(w.buf[:0], e)
	if _, err := w.f.WriteAt(w.buf, w.size); err != nil {
		return fmt.Errorf("%w: append entry for %d: %w", ErrIndex, e.Sequence, err)
	}
	w.size += indexEntrySize
	return nil
}

func (w *indexWriter) sync() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIndex, err)
	}
	return nil
}

func (w *indexWriter) close() error {
	return w.f.Close()
}
