package queue

import (
	"fmt"
	"time"

	"github.com/rzbill/flolog/pkg/log"
)

// Defaults applied by DefaultConfig and by Open for zero fields.
const (
	DefaultFileSize        uint64 = 1 << 30
	DefaultIndexInterval   uint64 = 1024
	DefaultChannelCapacity        = 1024
	DefaultBasePath               = "./queue_data"
)

// Config is fixed for the lifetime of an open Queue.
type Config struct {
	BasePath string
	// FileSize is the size threshold used when RollStrategy is nil.
	FileSize        uint64
	RollStrategy    RollStrategy
	FlushMode       FlushMode
	IndexInterval   uint64
	VerifyOnStartup bool
	// Origin is the first sequence of a new queue. It is ignored when the
	// directory already holds a manifest.
	Origin uint64
	// ChannelCapacity bounds the number of requests queued for the writer.
	ChannelCapacity int

	Logger  log.Logger
	Metrics Metrics

	// now is the writer's clock; tests replace it.
	now func() time.Time
}

// DefaultConfig returns the default configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		BasePath:        path,
		FileSize:        DefaultFileSize,
		RollStrategy:    BySize(DefaultFileSize),
		FlushMode:       FlushAsync{},
		IndexInterval:   DefaultIndexInterval,
		ChannelCapacity: DefaultChannelCapacity,
	}
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.FileSize == 0 {
		c.FileSize = DefaultFileSize
	}
	if c.RollStrategy == nil {
		c.RollStrategy = BySize(c.FileSize)
	}
	if c.FlushMode == nil {
		c.FlushMode = FlushAsync{}
	}
	if c.IndexInterval == 0 {
		c.IndexInterval = DefaultIndexInterval
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c Config) validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("%w: empty base path", ErrInvalidPath)
	}
	if b, ok := c.FlushMode.(FlushBatch); ok && b.Bytes == 0 && b.Interval <= 0 {
		return fmt.Errorf("queue: batch flush needs a byte or interval trigger")
	}
	return nil
}
