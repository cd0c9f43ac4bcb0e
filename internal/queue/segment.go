package queue

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	segmentExt = ".seg"
	indexExt   = ".idx"
)

// SegmentInfo describes one segment as recorded in the manifest. For the
// active segment SizeBytes and Count are a checkpoint of the last persisted
// state; for a live queue's snapshot they are the committed values.
type SegmentInfo struct {
	BaseSequence uint64
	Count        uint64
	SizeBytes    uint64
	Sealed       bool
	CreatedAt    uint64 // µs since epoch
}

// NextSequence is the sequence that follows the segment's last message.
func (s SegmentInfo) NextSequence() uint64 { return s.BaseSequence + s.Count }

// Contains reports whether seq was written to this segment.
func (s SegmentInfo) Contains(seq uint64) bool {
	return seq >= s.BaseSequence && seq < s.NextSequence()
}

func segmentFileName(base uint64) string { return fmt.Sprintf("%020d%s", base, segmentExt) }
func indexFileName(base uint64) string   { return fmt.Sprintf("%020d%s", base, indexExt) }

// listSegmentFiles returns the base sequences of every segment data file in
// dir, ascending.
func listSegmentFiles(dir string) ([]uint64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var bases []uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		base, err := strconv.ParseUint(strings.TrimSuffix(name, segmentExt), 10, 64)
		if err != nil {
			continue
		}
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	return bases, nil
}

// segmentWriter is the writable tail of the log. Only the writer loop (and
// recovery before it starts) touches it.
type segmentWriter struct {
	dir      string
	base     uint64
	f        *os.File
	index    *indexWriter
	size     int64
	count    uint64
	created  time.Time
	interval uint64
	buf      []byte
}

func createSegment(dir string, base, interval uint64, now time.Time) (*segmentWriter, error) {
	path := filepath.Join(dir, segmentFileName(base))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	idx, err := createIndex(filepath.Join(dir, indexFileName(base)), interval)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &segmentWriter{dir: dir, base: base, f: f, index: idx, created: now, interval: interval}, nil
}

// openSegmentForAppend reopens a recovered active segment whose valid data
// ends at info.SizeBytes.
func openSegmentForAppend(dir string, info SegmentInfo, idx *indexWriter, interval uint64) (*segmentWriter, error) {
	path := filepath.Join(dir, segmentFileName(info.BaseSequence))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	return &segmentWriter{
		dir:      dir,
		base:     info.BaseSequence,
		f:        f,
		index:    idx,
		size:     int64(info.SizeBytes),
		count:    info.Count,
		created:  time.UnixMicro(int64(info.CreatedAt)),
		interval: interval,
	}, nil
}

// append writes one frame and, at index points, its index entry. It returns
// the number of bytes added to the data file.
func (s *segmentWriter) append(seq uint64, now time.Time, payload []byte) (int, error) {
	off := s.size
	s.buf = AppendFrame(s.buf[:0], payload)
	if _, err := s.f.WriteAt(s.buf, off); err != nil {
		return 0, fmt.Errorf("write frame %d: %w", seq, err)
	}
	if s.count%s.interval == 0 {
		if err := s.index.append(IndexEntry{Sequence: seq, Offset: off, Timestamp: uint64(now.UnixMicro())}); err != nil {
			return 0, err
		}
	}
	s.size += int64(len(s.buf))
	s.count++
	return len(s.buf), nil
}

func (s *segmentWriter) sync() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync segment %d: %w", s.base, err)
	}
	return s.index.sync()
}

func (s *segmentWriter) close() error {
	err := s.f.Close()
	if ierr := s.index.close(); err == nil {
		err = ierr
	}
	return err
}

func (s *segmentWriter) info(sealed bool) SegmentInfo {
	return SegmentInfo{
		BaseSequence: s.base,
		Count:        s.count,
		SizeBytes:    uint64(s.size),
		Sealed:       sealed,
		CreatedAt:    uint64(s.created.UnixMicro()),
	}
}

// scanResult summarises a forward walk over a segment's frames.
type scanResult struct {
	end    int64  // offset just past the last good frame
	frames uint64 // good frames seen
	stop   error  // why the walk ended early, nil at a clean end of file
}

// scanFrames walks frames in r from start up to size, checking every
// checksum. fn, if not nil, sees each good frame's offset and ordinal
// relative to start.
func scanFrames(r io.ReaderAt, start, size int64, fn func(off int64, i uint64)) scanResult {
	res := scanResult{end: start}
	br := bufio.NewReaderSize(io.NewSectionReader(r, start, size-start), 1<<16)
	var hdr [frameLengthSize]byte
	var frame []byte
	for res.end < size {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			res.stop = shortOrIO(err)
			return res
		}
		n := int64(binary.LittleEndian.Uint32(hdr[:]))
		total := n + frameOverhead
		if res.end+total > size {
			res.stop = ErrShortFrame
			return res
		}
		if cap(frame) < int(total) {
			frame = make([]byte, total)
		}
		frame = frame[:total]
		copy(frame, hdr[:])
		if _, err := io.ReadFull(br, frame[frameLengthSize:]); err != nil {
			res.stop = shortOrIO(err)
			return res
		}
		if _, _, err := DecodeFrame(frame, 0); err != nil {
			res.stop = err
			return res
		}
		if fn != nil {
			fn(res.end, res.frames)
		}
		res.end += total
		res.frames++
	}
	return res
}

func shortOrIO(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrShortFrame
	}
	return err
}
