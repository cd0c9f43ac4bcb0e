package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rzbill/flolog/pkg/log"
)

// recovered is the state recovery hands to the writer loop.
type recovered struct {
	manifest  *Manifest
	active    *segmentWriter // nil when the log has no unsealed segment
	truncated int64
}

// recoverQueue loads (or creates) the manifest in cfg.BasePath, checks the
// sealed segments against it, repairs the active segment's tail and
// persists the result.
func recoverQueue(cfg Config, logger log.Logger) (*recovered, error) {
	dir := cfg.BasePath
	m, err := loadOrRebuildManifest(cfg, logger)
	if err != nil {
		return nil, err
	}
	if m.Origin != cfg.Origin && len(m.Segments) > 0 {
		logger.Debug("configured origin ignored for existing queue",
			log.Uint64("origin", m.Origin), log.Uint64("configured", cfg.Origin))
	}
	m.IndexInterval = cfg.IndexInterval

	if err := checkSealed(dir, m); err != nil {
		return nil, err
	}
	if err := removeOrphans(dir, m, logger); err != nil {
		return nil, err
	}

	rec := &recovered{manifest: m}
	if act, ok := m.Active(); ok {
		w, truncated, err := recoverActive(dir, act, cfg, logger)
		if err != nil {
			return nil, err
		}
		if w == nil {
			// never written to; the writer creates it again on first append
			m.Segments = m.Segments[:len(m.Segments)-1]
		}
		rec.active = w
		rec.truncated = truncated
	}
	if err := writeManifest(dir, m); err != nil {
		if rec.active != nil {
			_ = rec.active.close()
		}
		return nil, err
	}
	return rec, nil
}

func loadOrRebuildManifest(cfg Config, logger log.Logger) (*Manifest, error) {
	dir := cfg.BasePath
	m, err := ReadManifest(dir)
	if err == nil {
		err = m.validate()
	}
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, os.ErrNotExist):
		bases, lerr := listSegmentFiles(dir)
		if lerr != nil {
			return nil, lerr
		}
		if len(bases) == 0 {
			return &Manifest{Version: ManifestVersion, Origin: cfg.Origin, IndexInterval: cfg.IndexInterval}, nil
		}
		if !cfg.VerifyOnStartup {
			return nil, fmt.Errorf("%w: %d segment files but no manifest", ErrManifestCorrupted, len(bases))
		}
		logger.Warn("manifest missing, rebuilding from segment files", log.Int("segments", len(bases)))
		return rebuildManifest(dir, bases, cfg.Origin, cfg.IndexInterval)
	case errors.Is(err, ErrManifestCorrupted) && cfg.VerifyOnStartup:
		bases, lerr := listSegmentFiles(dir)
		if lerr != nil {
			return nil, lerr
		}
		logger.Warn("manifest corrupted, rebuilding from segment files", log.Err(err))
		return rebuildManifest(dir, bases, cfg.Origin, cfg.IndexInterval)
	default:
		return nil, err
	}
}

// rebuildManifest reconstructs a manifest by scanning every segment file.
// All but the last segment must verify completely; the last becomes the
// active segment with an empty checkpoint so recovery rescans it. Without
// segment files the queue starts over at origin.
func rebuildManifest(dir string, bases []uint64, origin, interval uint64) (*Manifest, error) {
	m := &Manifest{Version: ManifestVersion, Origin: origin, IndexInterval: interval}
	if len(bases) == 0 {
		return m, nil
	}
	m.Origin = bases[0]
	for i, base := range bases {
		if base != m.NextSequence() {
			return nil, fmt.Errorf("%w: gap before segment %d", ErrManifestCorrupted, base)
		}
		path := filepath.Join(dir, segmentFileName(base))
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		info := SegmentInfo{BaseSequence: base, CreatedAt: uint64(fi.ModTime().UnixMicro())}
		if i < len(bases)-1 {
			res := scanFrames(f, 0, fi.Size(), nil)
			if res.stop != nil {
				_ = f.Close()
				return nil, fmt.Errorf("%w: sealed segment %d: %w", ErrManifestCorrupted, base, res.stop)
			}
			info.Count, info.SizeBytes, info.Sealed = res.frames, uint64(res.end), true
		}
		_ = f.Close()
		m.Segments = append(m.Segments, info)
		if !info.Sealed {
			break
		}
	}
	return m, nil
}

func checkSealed(dir string, m *Manifest) error {
	for _, s := range m.Segments {
		if !s.Sealed {
			continue
		}
		fi, err := os.Stat(filepath.Join(dir, segmentFileName(s.BaseSequence)))
		if err != nil {
			return fmt.Errorf("%w: sealed segment %d: %w", ErrManifestCorrupted, s.BaseSequence, err)
		}
		if uint64(fi.Size()) != s.SizeBytes {
			return fmt.Errorf("%w: sealed segment %d is %d bytes, manifest says %d",
				ErrManifestCorrupted, s.BaseSequence, fi.Size(), s.SizeBytes)
		}
	}
	return nil
}

// removeOrphans deletes empty segment files the manifest does not know
// about. They are left behind by a crash between creating a segment and
// persisting the manifest that lists it.
func removeOrphans(dir string, m *Manifest, logger log.Logger) error {
	bases, err := listSegmentFiles(dir)
	if err != nil {
		return err
	}
	known := make(map[uint64]struct{}, len(m.Segments))
	for _, s := range m.Segments {
		known[s.BaseSequence] = struct{}{}
	}
	for _, base := range bases {
		if _, ok := known[base]; ok {
			continue
		}
		path := filepath.Join(dir, segmentFileName(base))
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if fi.Size() != 0 || base < m.NextSequence() {
			return fmt.Errorf("%w: segment file %s is not in the manifest", ErrManifestCorrupted, filepath.Base(path))
		}
		logger.Info("removing orphan segment", log.Uint64("base", base))
		if err := os.Remove(path); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(dir, indexFileName(base))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// recoverActive checksums the active segment from its checkpoint, truncates
// a damaged tail when verification is on (and refuses to open otherwise), brings the sparse index in line
// with the surviving frames and reopens both files for appending. act is
// updated in place with the recovered size and count.
func recoverActive(dir string, act *SegmentInfo, cfg Config, logger log.Logger) (*segmentWriter, int64, error) {
	path := filepath.Join(dir, segmentFileName(act.BaseSequence))
	idxPath := filepath.Join(dir, indexFileName(act.BaseSequence))
	logger = logger.With(log.Uint64("segment", act.BaseSequence))

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if errors.Is(err, os.ErrNotExist) && act.Count == 0 && act.SizeBytes == 0 {
		_ = os.Remove(idxPath)
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: active segment %d: %w", ErrManifestCorrupted, act.BaseSequence, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	fileSize := fi.Size()

	start, startCount := int64(act.SizeBytes), act.Count
	if fileSize < start {
		if !cfg.VerifyOnStartup {
			return nil, 0, fmt.Errorf("%w: segment %d is %d bytes, shorter than its %d byte checkpoint",
				ErrCorruptedSegment, act.BaseSequence, fileSize, start)
		}
		logger.Warn("segment shorter than checkpoint, rescanning from start",
			log.Int64("size", fileSize), log.Uint64("checkpoint", act.SizeBytes))
		start, startCount = 0, 0
	}

	existing, ierr := readIndexFile(idxPath)
	if ierr != nil && !errors.Is(ierr, os.ErrNotExist) {
		logger.Warn("index unreadable, rebuilding", log.Err(ierr))
	}

	interval := cfg.IndexInterval
	ts := uint64(fi.ModTime().UnixMicro())
	var derived []IndexEntry
	res := scanFrames(f, start, fileSize, func(off int64, i uint64) {
		if local := startCount + i; local%interval == 0 {
			derived = append(derived, IndexEntry{Sequence: act.BaseSequence + local, Offset: off, Timestamp: ts})
		}
	})

	var truncated int64
	if res.stop != nil {
		if !errors.Is(res.stop, ErrShortFrame) && !errors.Is(res.stop, ErrCorruptedMessage) {
			return nil, 0, res.stop
		}
		if !cfg.VerifyOnStartup {
			what := "a partial frame"
			if errors.Is(res.stop, ErrCorruptedMessage) {
				what = "a checksum mismatch"
			}
			return nil, 0, fmt.Errorf("%w: segment %d has %s at offset %d",
				ErrCorruptedSegment, act.BaseSequence, what, res.end)
		}
		truncated = fileSize - res.end
		logger.Warn("truncating damaged segment tail",
			log.Int64("offset", res.end), log.Int64("discarded_bytes", truncated), log.Err(res.stop))
		if err := f.Truncate(res.end); err != nil {
			return nil, 0, fmt.Errorf("truncate segment %d: %w", act.BaseSequence, err)
		}
		if err := f.Sync(); err != nil {
			return nil, 0, fmt.Errorf("sync segment %d: %w", act.BaseSequence, err)
		}
	}
	act.SizeBytes = uint64(res.end)
	act.Count = startCount + res.frames

	entries, changed := reconcileIndex(existing, derived, res.end)
	var idx *indexWriter
	if ierr != nil || changed {
		idx, err = rewriteIndex(idxPath, interval, entries)
	} else {
		idx, err = openIndexForAppend(idxPath, interval, len(entries))
	}
	if err != nil {
		return nil, 0, err
	}
	if truncated > 0 || res.frames > 0 {
		logger.Info("recovered active segment",
			log.Uint64("count", act.Count), log.Uint64("size", act.SizeBytes), log.Uint64("rescanned", res.frames))
	}
	w, err := openSegmentForAppend(dir, *act, idx, interval)
	if err != nil {
		_ = idx.close()
		return nil, 0, err
	}
	if act.CreatedAt == 0 {
		w.created = time.Now()
	}
	return w, truncated, nil
}

// reconcileIndex keeps the persisted entries that still point at surviving
// frames and appends the derived ones that are missing. It reports whether
// the result differs from what is on disk.
func reconcileIndex(existing, derived []IndexEntry, end int64) ([]IndexEntry, bool) {
	kept := existing[:0:0]
	var lastSeq uint64
	var lastOff int64 = -1
	for _, e := range existing {
		if e.Offset >= end || e.Offset <= lastOff || (len(kept) > 0 && e.Sequence <= lastSeq) {
			break
		}
		kept = append(kept, e)
		lastSeq, lastOff = e.Sequence, e.Offset
	}
	changed := len(kept) != len(existing)
	for _, e := range derived {
		if len(kept) > 0 && e.Sequence <= lastSeq {
			continue
		}
		kept = append(kept, e)
		lastSeq = e.Sequence
		changed = true
	}
	return kept, changed
}
