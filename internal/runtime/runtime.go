package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/cursor"
	"github.com/rzbill/flolog/internal/queue"
	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Registerer, when set, receives the queue and cursor store collectors.
	Registerer prometheus.Registerer
}

// Runtime owns one queue directory and its cursor store.
type Runtime struct {
	q       *queue.Queue
	db      *pebblestore.DB
	cursors *cursor.Store
	config  cfgpkg.Config
	logger  logpkg.Logger
}

// Open validates the config, opens the queue and then the cursor store.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runtime: invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	qcfg := cfg.QueueOptions()
	qcfg.Logger = logger
	if opts.Registerer != nil {
		qcfg.Metrics = queue.NewPrometheusMetrics(opts.Registerer)
	}
	q, err := queue.Open(qcfg)
	if err != nil {
		return nil, err
	}

	fsync, err := pebblestore.ParseFsyncMode(cfg.Cursors.Fsync)
	if err != nil {
		_ = q.Close()
		return nil, err
	}
	dbOpts := pebblestore.Options{
		DataDir:       cfg.CursorDir(),
		Fsync:         fsync,
		FsyncInterval: time.Duration(cfg.Cursors.FsyncIntervalMs) * time.Millisecond,
	}
	if opts.Registerer != nil {
		dbOpts.Metrics = pebblestore.NewPrometheusMetrics(opts.Registerer)
	}
	db, err := pebblestore.Open(dbOpts)
	if err != nil {
		_ = q.Close()
		return nil, err
	}
	cursors, err := cursor.NewStore(db, cfg.QueueName)
	if err != nil {
		_ = db.Close()
		_ = q.Close()
		return nil, err
	}

	logger.Info("runtime opened",
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("queue", cfg.QueueName),
		logpkg.Uint64("next_sequence", q.CurrentSequence()),
	)
	return &Runtime{q: q, db: db, cursors: cursors, config: cfg, logger: logger}, nil
}

// Close stops the queue writer and closes the cursor store. Both are
// attempted; errors are joined.
func (r *Runtime) Close() error {
	var errs []error
	if r.q != nil {
		errs = append(errs, r.q.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth reports a failed writer or an unusable cursor store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.q == nil || r.db == nil {
		return errors.New("runtime not open")
	}
	if err := r.q.Err(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if err := r.db.Flush(); err != nil {
		return fmt.Errorf("cursors: %w", err)
	}
	return nil
}

// Queue returns the underlying queue.
func (r *Runtime) Queue() *queue.Queue { return r.q }

// Cursors returns the consumer cursor store.
func (r *Runtime) Cursors() *cursor.Store { return r.cursors }

// Config returns the effective configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
