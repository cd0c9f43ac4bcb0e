package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/edsrzf/mmap-go"
)

// Mode selects what a Tailer does at the end of the committed data.
type Mode int

const (
	// Replay returns io.EOF once it has read everything committed when Next
	// was called.
	Replay Mode = iota
	// Follow blocks in Next until more data is committed.
	Follow
)

func (m Mode) String() string {
	if m == Follow {
		return "follow"
	}
	return "replay"
}

// TailerOption configures a Tailer.
type TailerOption func(*Tailer)

// WithMode sets the tailer mode; the default is Replay.
func WithMode(m Mode) TailerOption {
	return func(t *Tailer) { t.mode = m }
}

var errNoData = errors.New("queue: no committed data at position")

// Tailer reads messages in sequence order starting from a given sequence.
// A Tailer is not safe for concurrent use; open one per reader.
type Tailer struct {
	q      *Queue
	mode   Mode
	target uint64 // first sequence Next may return

	seg *segmentReader
	seq uint64 // sequence of the frame at off
	off int64
	ts  uint64
	buf []byte

	skipped uint64 // frames decoded only to reach target
}

// NewTailer opens a reader positioned at from, which must lie between the
// first retained sequence and the next sequence to be written.
func (q *Queue) NewTailer(from uint64, opts ...TailerOption) (*Tailer, error) {
	next := q.CurrentSequence()
	first := next
	if segs := q.state.snapshot(); len(segs) > 0 {
		first = segs[0].BaseSequence
	}
	if from < first || from > next {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrSequenceOutOfRange, from, first, next)
	}
	t := &Tailer{q: q, target: from, seq: from}
	for _, o := range opts {
		o(t)
	}
	if err := t.position(from); err != nil && !errors.Is(err, errNoData) {
		return nil, err
	}
	return t, nil
}

// Position returns the sequence the next call to Next will return.
func (t *Tailer) Position() uint64 {
	if t.seq < t.target {
		return t.target
	}
	return t.seq
}

// Next returns the next message. In Replay mode it returns io.EOF at the end
// of the data committed when it was called. A corrupted frame is reported
// as *CorruptedMessageError and the tailer stays on it until Skip.
func (t *Tailer) Next(ctx context.Context) (Message, error) {
	end := t.q.CurrentSequence()
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		if t.mode == Replay && t.seq >= end {
			return Message{}, io.EOF
		}
		msg, err := t.read()
		switch {
		case err == nil:
			if msg.Sequence < t.target {
				t.skipped++
				continue
			}
			return msg, nil
		case !errors.Is(err, errNoData):
			return Message{}, err
		case t.mode == Replay:
			return Message{}, io.EOF
		}
		if err := t.q.WaitForAppend(ctx, t.seq); err != nil {
			return Message{}, err
		}
	}
}

// Skip moves past the frame at the current position, typically after Next
// reported it corrupted. When the frame's declared length does not lead to
// a valid frame the tailer resynchronises at the next index entry, or at
// the start of the next segment.
func (t *Tailer) Skip() error {
	r := t.seg
	if r == nil {
		return nil
	}
	if n, ok := r.declaredLength(t.off); ok {
		next := t.off + int64(FrameSize(n))
		if next == r.limit || (next < r.limit && r.validFrameAt(next, &t.buf)) {
			t.off = next
			t.seq++
			return nil
		}
	}
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Offset > t.off })
	if i < len(r.entries) {
		t.seq, t.off = r.entries[i].Sequence, r.entries[i].Offset
		r.nextEntry = i
		return nil
	}
	if r.info.Sealed {
		t.seq, t.off = r.info.NextSequence(), r.limit
		return nil
	}
	return fmt.Errorf("%w: no resync point after sequence %d in segment %d", ErrCorruptedSegment, t.seq, r.info.BaseSequence)
}

// Close releases the tailer's file handles.
func (t *Tailer) Close() error {
	if t.seg == nil {
		return nil
	}
	err := t.seg.close()
	t.seg = nil
	return err
}

// position opens the segment holding seq and moves to the closest indexed
// frame at or before it.
func (t *Tailer) position(seq uint64) error {
	info, ok := t.q.state.segmentFor(seq)
	if !ok {
		if seq >= t.q.CurrentSequence() {
			return errNoData
		}
		return fmt.Errorf("%w: no segment holds %d", ErrSequenceOutOfRange, seq)
	}
	r, err := openSegmentReader(t.q.cfg.BasePath, info)
	if err != nil {
		return err
	}
	t.seg = r
	t.seq, t.off = info.BaseSequence, 0
	if e, ok := searchIndex(r.entries, seq); ok {
		t.seq, t.off = e.Sequence, e.Offset
	}
	r.nextEntry = sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Offset >= t.off })
	t.ts = info.CreatedAt
	return nil
}

func (t *Tailer) read() (Message, error) {
	for {
		if t.seg == nil {
			if err := t.position(t.seq); err != nil {
				return Message{}, err
			}
		}
		r := t.seg
		if t.off >= r.limit && !r.info.Sealed {
			r.refresh(t.q)
		}
		if t.off >= r.limit {
			if !r.info.Sealed {
				return Message{}, errNoData
			}
			if t.seq != r.info.NextSequence() {
				return Message{}, fmt.Errorf("%w: segment %d ended at sequence %d, expected %d",
					ErrInternal, r.info.BaseSequence, t.seq, r.info.NextSequence())
			}
			_ = r.close()
			t.seg = nil
			continue
		}

		frame, err := r.frame(t.off, t.seq, &t.buf)
		if err == nil {
			var payload []byte
			if payload, _, err = DecodeFrame(frame, t.seq); err == nil {
				for r.nextEntry < len(r.entries) && r.entries[r.nextEntry].Offset <= t.off {
					t.ts = r.entries[r.nextEntry].Timestamp
					r.nextEntry++
				}
				msg := Message{Sequence: t.seq, Timestamp: t.ts, Payload: append([]byte(nil), payload...)}
				t.off += int64(len(frame))
				t.seq++
				return msg, nil
			}
		}
		var cerr *CorruptedMessageError
		if errors.As(err, &cerr) {
			cerr.Offset = t.off
			t.q.cfg.Metrics.ObserveCorruption()
		}
		return Message{}, err
	}
}

// segmentReader is a tailer's view of one segment file.
type segmentReader struct {
	info      SegmentInfo
	path      string
	f         *os.File
	data      mmap.MMap // whole file, sealed segments only
	limit     int64     // committed bytes
	entries   []IndexEntry
	nextEntry int
}

func openSegmentReader(dir string, info SegmentInfo) (*segmentReader, error) {
	path := filepath.Join(dir, segmentFileName(info.BaseSequence))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment %d: %w", info.BaseSequence, err)
	}
	r := &segmentReader{info: info, path: path, f: f, limit: int64(info.SizeBytes)}
	if info.Sealed && info.SizeBytes > 0 {
		m, err := mmap.MapRegion(f, int(info.SizeBytes), mmap.RDONLY, 0, 0)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("map segment %d: %w", info.BaseSequence, err)
		}
		r.data = m
	}
	r.loadIndex(filepath.Join(dir, indexFileName(info.BaseSequence)))
	return r, nil
}

// loadIndex reads the sparse index, keeping only entries inside the
// committed region. A missing or damaged index only costs seek speed.
func (r *segmentReader) loadIndex(path string) {
	entries, err := readIndexFile(path)
	if err != nil {
		r.entries = nil
		return
	}
	n := sort.Search(len(entries), func(i int) bool { return entries[i].Offset >= r.limit })
	r.entries = entries[:n]
}

// refresh picks up data the writer committed to an active segment since the
// reader was opened.
func (r *segmentReader) refresh(q *Queue) {
	info, ok := q.state.segment(r.info.BaseSequence)
	if !ok || int64(info.SizeBytes) == r.limit && info.Sealed == r.info.Sealed {
		return
	}
	r.info = info
	r.limit = int64(info.SizeBytes)
	r.loadIndex(filepath.Join(filepath.Dir(r.path), indexFileName(info.BaseSequence)))
}

func (r *segmentReader) declaredLength(off int64) (int, bool) {
	if off+frameLengthSize > r.limit {
		return 0, false
	}
	if r.data != nil {
		return frameLength(r.data[off:])
	}
	var hdr [frameLengthSize]byte
	if _, err := r.f.ReadAt(hdr[:], off); err != nil {
		return 0, false
	}
	return frameLength(hdr[:])
}

// frame returns the raw frame at off, bounded by the committed size.
func (r *segmentReader) frame(off int64, seq uint64, buf *[]byte) ([]byte, error) {
	n, ok := r.declaredLength(off)
	if !ok {
		return nil, corrupted(seq, off, "frame header past committed end")
	}
	total := int64(FrameSize(n))
	if off+total > r.limit {
		return nil, corrupted(seq, off, "frame extends past committed end")
	}
	if r.data != nil {
		return r.data[off : off+total], nil
	}
	if int64(cap(*buf)) < total {
		*buf = make([]byte, total)
	}
	b := (*buf)[:total]
	if _, err := r.f.ReadAt(b, off); err != nil {
		return nil, fmt.Errorf("read segment %d at %d: %w", r.info.BaseSequence, off, err)
	}
	return b, nil
}

func (r *segmentReader) validFrameAt(off int64, buf *[]byte) bool {
	b, err := r.frame(off, 0, buf)
	if err != nil {
		return false
	}
	_, _, err = DecodeFrame(b, 0)
	return err == nil
}

func (r *segmentReader) close() error {
	var err error
	if r.data != nil {
		err = r.data.Unmap()
		r.data = nil
	}
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}
