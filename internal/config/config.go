// Package config holds the single process-wide configuration struct read at
// startup, per the design note that global state is "limited to one
// read-at-startup configuration struct; never mutated at runtime."
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/amaydixit11/mindoodb/internal/mdlog"
)

const (
	// DefaultPBKDF2Iterations is used unless overridden; floor is 60000.
	DefaultPBKDF2Iterations = 310000
	MinPBKDF2Iterations     = 60000

	DefaultChunkSize = 256 * 1024 // attachment chunk size, §4.5

	DefaultCacheFlushDebounce = 5000 * time.Millisecond

	DefaultSnapshotMinChanges = 64
	DefaultSnapshotMaxChanges = 512

	DefaultMetadataSegmentCompactionMinFiles = 8
	DefaultMetadataSegmentCompactionMaxBytes = 8 * 1024 * 1024
)

// Config is constructed once, at process start, and passed down by value or
// pointer to constructors; nothing mutates it afterwards.
type Config struct {
	DataDir string

	PBKDF2Iterations int

	ChunkSize int

	CacheFlushDebounce time.Duration

	SnapshotMinChanges int
	SnapshotMaxChanges int

	MetadataSegmentCompactionMinFiles int
	MetadataSegmentCompactionMaxBytes int64

	LogLevel mdlog.Level
}

// Default returns a Config with every field at its documented default.
func Default(dataDir string) Config {
	return Config{
		DataDir:                            dataDir,
		PBKDF2Iterations:                   DefaultPBKDF2Iterations,
		ChunkSize:                          DefaultChunkSize,
		CacheFlushDebounce:                 DefaultCacheFlushDebounce,
		SnapshotMinChanges:                 DefaultSnapshotMinChanges,
		SnapshotMaxChanges:                 DefaultSnapshotMaxChanges,
		MetadataSegmentCompactionMinFiles:  DefaultMetadataSegmentCompactionMinFiles,
		MetadataSegmentCompactionMaxBytes:  DefaultMetadataSegmentCompactionMaxBytes,
		LogLevel:                           mdlog.LevelInfo,
	}
}

// FromEnv overlays environment overrides onto a Default config:
// MINDOODB_PBKDF2_ITERATIONS (§4.7; a non-integer value, or one below
// MinPBKDF2Iterations, keeps the default rather than failing startup) and
// MINDOODB_DATA_DIR.
func FromEnv(dataDir string) Config {
	cfg := Default(dataDir)
	if v := os.Getenv("MINDOODB_PBKDF2_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= MinPBKDF2Iterations {
			cfg.PBKDF2Iterations = n
		}
	}
	if v := os.Getenv("MINDOODB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	return cfg
}
