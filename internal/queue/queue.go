package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/rzbill/flolog/pkg/log"
)

const lockFileName = "LOCK"

// Queue is an open log directory. One Queue may be open per directory at a
// time; a second Open on the same directory fails with ErrLocked.
type Queue struct {
	cfg    Config
	logger log.Logger
	lock   *flock.Flock
	state  *committed

	sendMu  sync.RWMutex
	closing bool
	reqs    chan *writeRequest

	writerDone chan struct{}
	writerErr  error

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the queue at cfg.BasePath, running recovery before
// the writer starts.
func Open(cfg Config) (*Queue, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dir := cfg.BasePath
	if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	logger := cfg.Logger.With(log.Component("queue"), log.Str("path", dir))
	start := time.Now()
	rec, err := recoverQueue(cfg, logger.WithComponent("recovery"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if rec.truncated > 0 {
		cfg.Metrics.ObserveRecovery(rec.truncated)
	}
	cfg.Metrics.SetNextSequence(rec.manifest.NextSequence())

	q := &Queue{
		cfg:        cfg,
		logger:     logger,
		lock:       lock,
		state:      newCommitted(rec.manifest),
		reqs:       make(chan *writeRequest, cfg.ChannelCapacity),
		writerDone: make(chan struct{}),
	}
	w := newWriter(cfg, rec, q.state, logger.WithComponent("writer"))
	go func() {
		defer close(q.writerDone)
		q.writerErr = w.run(q.reqs)
	}()

	logger.Info("queue opened",
		log.Uint64("next", rec.manifest.NextSequence()),
		log.Int("segments", len(rec.manifest.Segments)),
		log.Str("roll", cfg.RollStrategy.String()),
		log.Str("flush", cfg.FlushMode.String()),
		log.Duration("recovery", time.Since(start)))
	return q, nil
}

// Config returns the effective configuration.
func (q *Queue) Config() Config { return q.cfg }

// NewAppender returns a write handle.
func (q *Queue) NewAppender() *Appender { return &Appender{q: q} }

// CurrentSequence returns the next sequence to be assigned.
func (q *Queue) CurrentSequence() uint64 { return q.state.next.Load() }

// Segments returns the current segment list, including the committed size
// of the active segment.
func (q *Queue) Segments() []SegmentInfo { return q.state.snapshot() }

// Err returns the error that stopped the writer, if any.
func (q *Queue) Err() error { return q.state.err() }

// Stats summarises the queue.
type Stats struct {
	FirstSequence uint64
	NextSequence  uint64
	Segments      int
	SealedBytes   uint64
	ActiveBytes   uint64
}

func (q *Queue) Stats() Stats {
	segs := q.state.snapshot()
	st := Stats{NextSequence: q.CurrentSequence(), Segments: len(segs), FirstSequence: q.CurrentSequence()}
	if len(segs) > 0 {
		st.FirstSequence = segs[0].BaseSequence
	}
	for _, s := range segs {
		if s.Sealed {
			st.SealedBytes += s.SizeBytes
		} else {
			st.ActiveBytes += s.SizeBytes
		}
	}
	return st
}

// WaitForAppend blocks until a message with sequence >= seq is committed,
// ctx is done, the queue closes (ErrClosed) or the writer fails.
func (q *Queue) WaitForAppend(ctx context.Context, seq uint64) error {
	for {
		ch := q.state.waitCh()
		if q.state.next.Load() > seq {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-q.state.closedCh:
			return ErrClosed
		case <-q.state.failedCh:
			return fmt.Errorf("%w: %w", ErrWriterStopped, q.state.err())
		}
	}
}

// SequenceAt returns a sequence from which replay covers every message
// written at or after ts. Resolution is the index interval: the result is
// the last indexed message written at or before ts.
func (q *Queue) SequenceAt(ts time.Time) (uint64, error) {
	target := uint64(ts.UnixMicro())
	segs := q.state.snapshot()
	if len(segs) == 0 {
		return q.CurrentSequence(), nil
	}
	best := segs[0].BaseSequence
	for _, s := range segs {
		if s.Count == 0 {
			continue
		}
		if s.CreatedAt > target {
			break
		}
		entries, err := readIndexFile(filepath.Join(q.cfg.BasePath, indexFileName(s.BaseSequence)))
		if err != nil {
			return 0, fmt.Errorf("%w: segment %d: %w", ErrIndex, s.BaseSequence, err)
		}
		for _, e := range entries {
			if e.Timestamp > target {
				return best, nil
			}
			if e.Sequence < s.NextSequence() {
				best = e.Sequence
			}
		}
	}
	return best, nil
}

// Close stops accepting appends, lets the writer drain every queued request,
// syncs, checkpoints the active segment and releases the directory. Tailers
// blocked in follow mode return ErrClosed.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.sendMu.Lock()
		q.closing = true
		close(q.reqs)
		q.sendMu.Unlock()

		<-q.writerDone
		q.state.close()
		q.closeErr = q.writerErr
		if err := q.lock.Unlock(); err != nil && q.closeErr == nil {
			q.closeErr = err
		}
		if q.closeErr != nil {
			q.logger.Error("queue closed with error", log.Err(q.closeErr))
			return
		}
		q.logger.Info("queue closed", log.Uint64("next", q.CurrentSequence()))
	})
	return q.closeErr
}
