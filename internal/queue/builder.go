package queue

import (
	"time"

	"github.com/rzbill/flolog/pkg/log"
)

// Builder assembles a Config fluently:
//
//	q, err := queue.NewBuilder(dir).
//	    RollStrategy(queue.Combined{queue.BySize(64 << 20), queue.ByTime(time.Hour)}).
//	    FlushMode(queue.FlushBatch{Bytes: 1 << 20, Interval: 10 * time.Millisecond}).
//	    Build()
type Builder struct {
	cfg Config
}

// NewBuilder starts from DefaultConfig(path). The roll strategy follows
// FileSize unless RollStrategy is called.
func NewBuilder(path string) *Builder {
	cfg := DefaultConfig(path)
	cfg.RollStrategy = nil
	return &Builder{cfg: cfg}
}

// FileSize sets the size threshold; it becomes the roll strategy unless one
// is set explicitly.
func (b *Builder) FileSize(n uint64) *Builder { b.cfg.FileSize = n; return b }

// RollStrategy sets when the active segment is sealed.
func (b *Builder) RollStrategy(s RollStrategy) *Builder { b.cfg.RollStrategy = s; return b }

// FlushMode sets when the writer issues a durability barrier.
func (b *Builder) FlushMode(m FlushMode) *Builder { b.cfg.FlushMode = m; return b }

// IndexInterval sets how many messages lie between sparse index entries.
func (b *Builder) IndexInterval(n uint64) *Builder { b.cfg.IndexInterval = n; return b }

// VerifyOnStartup lets recovery truncate a damaged tail and rebuild a lost
// manifest instead of refusing to open.
func (b *Builder) VerifyOnStartup(v bool) *Builder { b.cfg.VerifyOnStartup = v; return b }

// Origin sets the first sequence of a new queue. It is ignored once the
// queue has a manifest.
func (b *Builder) Origin(seq uint64) *Builder { b.cfg.Origin = seq; return b }

// ChannelCapacity sets how many write requests may wait for the writer.
func (b *Builder) ChannelCapacity(n int) *Builder { b.cfg.ChannelCapacity = n; return b }

// Logger sets the engine logger; the default discards.
func (b *Builder) Logger(l log.Logger) *Builder { b.cfg.Logger = l; return b }

// Metrics sets the metrics sink; the default is NoopMetrics.
func (b *Builder) Metrics(m Metrics) *Builder { b.cfg.Metrics = m; return b }

// RollEvery is shorthand for a time-based roll strategy.
func (b *Builder) RollEvery(d time.Duration) *Builder { b.cfg.RollStrategy = ByTime(d); return b }

// Config returns the configuration built so far.
func (b *Builder) Config() Config { return b.cfg }

// Build opens the queue.
func (b *Builder) Build() (*Queue, error) { return Open(b.cfg) }
