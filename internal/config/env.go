package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FLOLOG_* environment variables onto cfg. Unparseable
// values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLOLOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLOLOG_QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("FLOLOG_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Queue.FileSize = n
		}
	}
	if v := os.Getenv("FLOLOG_ROLL_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Queue.Roll.MaxBytes = n
		}
	}
	if v := os.Getenv("FLOLOG_ROLL_MAX_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Queue.Roll.MaxAgeMs = n
		}
	}
	if v := os.Getenv("FLOLOG_ROLL_MAX_MESSAGES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Queue.Roll.MaxMessages = n
		}
	}
	if v := os.Getenv("FLOLOG_FLUSH_MODE"); v != "" {
		cfg.Queue.Flush.Mode = v
	}
	if v := os.Getenv("FLOLOG_FLUSH_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Queue.Flush.Bytes = n
		}
	}
	if v := os.Getenv("FLOLOG_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Queue.Flush.IntervalMs = n
		}
	}
	if v := os.Getenv("FLOLOG_INDEX_INTERVAL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Queue.IndexInterval = n
		}
	}
	if v := os.Getenv("FLOLOG_VERIFY_ON_STARTUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.VerifyOnStartup = b
		}
	}
	if v := os.Getenv("FLOLOG_CURSOR_FSYNC"); v != "" {
		cfg.Cursors.Fsync = v
	}
	if v := os.Getenv("FLOLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FLOLOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
