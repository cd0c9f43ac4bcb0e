package queue

import (
	"fmt"
	"os"
	"path/filepath"
)

// SegmentReport is the result of checking one segment.
type SegmentReport struct {
	SegmentInfo
	Frames       uint64
	ValidBytes   int64
	FileBytes    int64
	IndexEntries int
	Err          error
}

// VerifyReport is the result of Verify.
type VerifyReport struct {
	Manifest *Manifest
	Segments []SegmentReport
}

// OK reports whether every segment verified.
func (r VerifyReport) OK() bool {
	for _, s := range r.Segments {
		if s.Err != nil {
			return false
		}
	}
	return true
}

// Verify checks a queue directory without opening it for writing: every
// frame's checksum, sealed segment sizes and counts against the manifest,
// and that every index entry points at the frame it names. It returns an
// error only when the manifest itself cannot be read; per-segment problems
// are in the report.
func Verify(dir string) (VerifyReport, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return VerifyReport{}, err
	}
	rep := VerifyReport{Manifest: m}
	if err := m.validate(); err != nil {
		return rep, err
	}
	for _, s := range m.Segments {
		rep.Segments = append(rep.Segments, verifySegment(dir, s))
	}
	return rep, nil
}

func verifySegment(dir string, s SegmentInfo) SegmentReport {
	rep := SegmentReport{SegmentInfo: s}
	f, err := os.Open(filepath.Join(dir, segmentFileName(s.BaseSequence)))
	if err != nil {
		rep.Err = err
		return rep
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.FileBytes = fi.Size()

	entries, ierr := readIndexFile(filepath.Join(dir, indexFileName(s.BaseSequence)))
	rep.IndexEntries = len(entries)
	want := make(map[int64]uint64, len(entries))
	for _, e := range entries {
		want[e.Offset] = e.Sequence
	}
	matched := 0
	var mismatch error
	res := scanFrames(f, 0, rep.FileBytes, func(off int64, i uint64) {
		seq, ok := want[off]
		if !ok {
			return
		}
		if seq != s.BaseSequence+i && mismatch == nil {
			mismatch = fmt.Errorf("%w: entry at offset %d names %d, frame is %d", ErrIndex, off, seq, s.BaseSequence+i)
		}
		matched++
	})
	rep.Frames, rep.ValidBytes = res.frames, res.end

	switch {
	case res.stop != nil:
		rep.Err = fmt.Errorf("%w: offset %d: %w", ErrCorruptedSegment, res.end, res.stop)
	case s.Sealed && (res.frames != s.Count || uint64(res.end) != s.SizeBytes):
		rep.Err = fmt.Errorf("%w: sealed segment has %d frames / %d bytes, manifest says %d / %d",
			ErrManifestCorrupted, res.frames, res.end, s.Count, s.SizeBytes)
	case !s.Sealed && res.frames < s.Count:
		rep.Err = fmt.Errorf("%w: active segment has %d frames, checkpoint says %d", ErrCorruptedSegment, res.frames, s.Count)
	case ierr != nil:
		rep.Err = ierr
	case mismatch != nil:
		rep.Err = mismatch
	case matched != len(entries):
		rep.Err = fmt.Errorf("%w: %d of %d entries do not point at a frame", ErrIndex, len(entries)-matched, len(entries))
	}
	return rep
}
