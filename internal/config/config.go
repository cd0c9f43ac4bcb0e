package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/flolog/internal/queue"
	"github.com/rzbill/flolog/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// QueueName scopes consumer cursors; one data dir holds one queue.
	QueueName string       `json:"queueName" yaml:"queueName"`
	Queue     QueueConfig  `json:"queue" yaml:"queue"`
	Cursors   CursorConfig `json:"cursors" yaml:"cursors"`
	Log       log.Config   `json:"log" yaml:"log"`
}

// QueueConfig mirrors the engine options in file-friendly units.
type QueueConfig struct {
	FileSize        uint64      `json:"fileSize" yaml:"fileSize"`
	Roll            RollConfig  `json:"roll" yaml:"roll"`
	Flush           FlushConfig `json:"flush" yaml:"flush"`
	IndexInterval   uint64      `json:"indexInterval" yaml:"indexInterval"`
	VerifyOnStartup bool        `json:"verifyOnStartup" yaml:"verifyOnStartup"`
	Origin          uint64      `json:"origin" yaml:"origin"`
	ChannelCapacity int         `json:"channelCapacity" yaml:"channelCapacity"`
}

// RollConfig lists roll triggers; any non-zero one can seal a segment. With
// none set, segments roll at FileSize.
type RollConfig struct {
	MaxBytes    uint64 `json:"maxBytes" yaml:"maxBytes"`
	MaxAgeMs    int64  `json:"maxAgeMs" yaml:"maxAgeMs"`
	MaxMessages uint64 `json:"maxMessages" yaml:"maxMessages"`
}

// FlushConfig selects the durability mode: "async", "sync" or "batch".
type FlushConfig struct {
	Mode       string `json:"mode" yaml:"mode"`
	Bytes      uint64 `json:"bytes" yaml:"bytes"`
	IntervalMs int64  `json:"intervalMs" yaml:"intervalMs"`
}

// CursorConfig configures the Pebble store holding consumer cursors.
type CursorConfig struct {
	Fsync           string `json:"fsync" yaml:"fsync"` // always|interval|never
	FsyncIntervalMs int64  `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:   DefaultDataDir(),
		QueueName: "default",
		Queue: QueueConfig{
			FileSize:        1 << 30,
			Flush:           FlushConfig{Mode: "async"},
			IndexInterval:   1024,
			ChannelCapacity: 1024,
		},
		Cursors: CursorConfig{Fsync: "always"},
		Log:     log.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports every invalid setting, joined.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("dataDir is required"))
	}
	if c.QueueName == "" || strings.Contains(c.QueueName, "/") {
		errs = append(errs, fmt.Errorf("queueName %q must be non-empty and contain no '/'", c.QueueName))
	}
	switch c.Queue.Flush.Mode {
	case "", "async", "sync":
	case "batch":
		if c.Queue.Flush.Bytes == 0 && c.Queue.Flush.IntervalMs <= 0 {
			errs = append(errs, errors.New("batch flush needs bytes or intervalMs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown flush mode %q", c.Queue.Flush.Mode))
	}
	if c.Queue.Roll.MaxAgeMs < 0 {
		errs = append(errs, errors.New("roll.maxAgeMs must not be negative"))
	}
	switch c.Cursors.Fsync {
	case "", "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("unknown cursor fsync mode %q", c.Cursors.Fsync))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// QueueDir is where segment files live.
func (c Config) QueueDir() string { return filepath.Join(c.DataDir, "queue") }

// CursorDir is the Pebble directory for consumer cursors.
func (c Config) CursorDir() string { return filepath.Join(c.DataDir, "cursors") }

// QueueOptions translates the file settings into engine options rooted at
// QueueDir. Logger and Metrics are left for the caller.
func (c Config) QueueOptions() queue.Config {
	q := c.Queue
	out := queue.DefaultConfig(c.QueueDir())
	if q.FileSize > 0 {
		out.FileSize = q.FileSize
	}
	var roll queue.Combined
	if q.Roll.MaxBytes > 0 {
		roll = append(roll, queue.BySize(q.Roll.MaxBytes))
	}
	if q.Roll.MaxAgeMs > 0 {
		roll = append(roll, queue.ByTime(time.Duration(q.Roll.MaxAgeMs)*time.Millisecond))
	}
	if q.Roll.MaxMessages > 0 {
		roll = append(roll, queue.ByCount(q.Roll.MaxMessages))
	}
	switch len(roll) {
	case 0:
		out.RollStrategy = queue.BySize(out.FileSize)
	case 1:
		out.RollStrategy = roll[0]
	default:
		out.RollStrategy = roll
	}
	switch q.Flush.Mode {
	case "sync":
		out.FlushMode = queue.FlushSync{}
	case "batch":
		out.FlushMode = queue.FlushBatch{
			Bytes:    q.Flush.Bytes,
			Interval: time.Duration(q.Flush.IntervalMs) * time.Millisecond,
		}
	default:
		out.FlushMode = queue.FlushAsync{}
	}
	if q.IndexInterval > 0 {
		out.IndexInterval = q.IndexInterval
	}
	out.VerifyOnStartup = q.VerifyOnStartup
	out.Origin = q.Origin
	if q.ChannelCapacity > 0 {
		out.ChannelCapacity = q.ChannelCapacity
	}
	return out
}
