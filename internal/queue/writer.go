package queue

import (
	"fmt"
	"time"

	"github.com/rzbill/flolog/pkg/log"
)

type writeRequest struct {
	payloads [][]byte
	resp     chan writeResult
}

// writeResult reports how many payloads of a request were written, starting
// at first. err is set when fewer than all of them were.
type writeResult struct {
	first uint64
	n     int
	err   error
}

// writer is the single goroutine that owns the active segment. Everything
// below is touched only from run.
type writer struct {
	dir      string
	roll     RollStrategy
	flush    FlushMode
	interval uint64
	logger   log.Logger
	metrics  Metrics
	state    *committed
	now      func() time.Time

	manifest  *Manifest
	active    *segmentWriter
	next      uint64
	pending   uint64
	lastFlush time.Time
	err       error
}

func newWriter(cfg Config, rec *recovered, state *committed, logger log.Logger) *writer {
	return &writer{
		dir:       cfg.BasePath,
		roll:      cfg.RollStrategy,
		flush:     cfg.FlushMode,
		interval:  cfg.IndexInterval,
		logger:    logger,
		metrics:   cfg.Metrics,
		state:     state,
		now:       cfg.now,
		manifest:  rec.manifest,
		active:    rec.active,
		next:      rec.manifest.NextSequence(),
		lastFlush: cfg.now(),
	}
}

// run consumes requests until reqs is closed, then shuts down. After a fatal
// error it keeps draining so producers are never left blocked.
func (w *writer) run(reqs <-chan *writeRequest) error {
	var tick <-chan time.Time
	if b, ok := w.flush.(FlushBatch); ok && b.Interval > 0 {
		t := time.NewTicker(b.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case req, ok := <-reqs:
			if !ok {
				return w.shutdown()
			}
			if w.err != nil {
				req.resp <- writeResult{first: w.next, err: fmt.Errorf("%w: %w", ErrWriterStopped, w.err)}
				continue
			}
			res := w.handle(req.payloads)
			if res.err != nil {
				w.fail(res.err)
			}
			req.resp <- res
		case <-tick:
			if w.err == nil && w.active != nil && w.flush.ShouldFlush(w.pending, w.now().Sub(w.lastFlush)) {
				if err := w.sync(); err != nil {
					w.fail(err)
				}
			}
		}
	}
}

func (w *writer) handle(payloads [][]byte) writeResult {
	res := writeResult{first: w.next}
	bytes := 0
	for _, p := range payloads {
		n, err := w.appendOne(p)
		if n > 0 {
			bytes += n
			res.n++
		}
		if err != nil {
			res.err = err
			break
		}
	}
	if res.n > 0 {
		if w.active != nil {
			w.state.publish(w.active.info(false), w.next)
		}
		w.metrics.ObserveAppend(res.n, bytes)
		w.metrics.SetNextSequence(w.next)
	}
	return res
}

func (w *writer) appendOne(payload []byte) (int, error) {
	if s := w.active; s != nil && s.count > 0 &&
		w.roll.ShouldRoll(uint64(s.size), w.now().Sub(s.created), s.count) {
		if err := w.rollSegment(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrRollFailed, err)
		}
	}
	if w.active == nil {
		if err := w.openSegment(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrRollFailed, err)
		}
	}
	now := w.now()
	n, err := w.active.append(w.next, now, payload)
	if err != nil {
		return 0, err
	}
	w.next++
	w.pending += uint64(n)
	if w.flush.ShouldFlush(w.pending, now.Sub(w.lastFlush)) {
		if err := w.sync(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// rollSegment seals the active segment: sync, mark sealed, persist the
// manifest. The next segment is opened lazily by appendOne.
func (w *writer) rollSegment() error {
	if err := w.active.sync(); err != nil {
		return err
	}
	sealed := w.active.info(true)
	if err := w.active.close(); err != nil {
		return err
	}
	w.active = nil
	w.pending = 0
	w.lastFlush = w.now()

	w.manifest.Segments[len(w.manifest.Segments)-1] = sealed
	if err := writeManifest(w.dir, w.manifest); err != nil {
		return err
	}
	w.state.publish(sealed, w.next)
	w.metrics.ObserveRoll(sealed)
	w.logger.Info("segment sealed",
		log.Uint64("base", sealed.BaseSequence),
		log.Uint64("count", sealed.Count),
		log.Uint64("bytes", sealed.SizeBytes))
	return nil
}

func (w *writer) openSegment() error {
	s, err := createSegment(w.dir, w.next, w.interval, w.now())
	if err != nil {
		return err
	}
	w.manifest.Segments = append(w.manifest.Segments, s.info(false))
	if err := writeManifest(w.dir, w.manifest); err != nil {
		w.manifest.Segments = w.manifest.Segments[:len(w.manifest.Segments)-1]
		_ = s.close()
		return err
	}
	w.active = s
	w.state.publish(s.info(false), w.next)
	w.logger.Debug("segment opened", log.Uint64("base", s.base))
	return nil
}

func (w *writer) sync() error {
	start := time.Now()
	if err := w.active.sync(); err != nil {
		return err
	}
	w.pending = 0
	w.lastFlush = w.now()
	w.metrics.ObserveFlush(time.Since(start))
	return nil
}

func (w *writer) fail(err error) {
	w.err = err
	w.state.fail(err)
	w.logger.Error("writer stopped", log.Err(err), log.Uint64("next", w.next))
}

// shutdown syncs the active segment and records its checkpoint in the
// manifest. A failed writer only releases its handles.
func (w *writer) shutdown() error {
	if w.active == nil {
		return w.err
	}
	defer func() { w.active = nil }()
	if w.err != nil {
		_ = w.active.close()
		return w.err
	}
	if err := w.active.sync(); err != nil {
		_ = w.active.close()
		return err
	}
	w.manifest.Segments[len(w.manifest.Segments)-1] = w.active.info(false)
	if err := writeManifest(w.dir, w.manifest); err != nil {
		_ = w.active.close()
		return err
	}
	return w.active.close()
}
