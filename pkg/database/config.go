package database

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/tegdb/tegdb/pkg/wal"
)

// Config é o arquivo de configuração opcional (HuJSON: JSON com comentários
// e vírgulas finais).
type Config struct {
	SyncPolicy            string `json:"sync_policy"` // "immediate" | "group_commit"
	GroupCommitIntervalMs int64  `json:"group_commit_interval_ms"`
	MaxKeySize            uint32 `json:"max_key_size"`
	MaxValueSize          uint32 `json:"max_value_size"`
	InlineValueThreshold  int    `json:"inline_value_threshold"`
	CacheBytes            int64  `json:"cache_bytes"`
	Checksums             bool   `json:"checksums"`
	PreallocateSize       int64  `json:"preallocate_size"`

	CompactAbsoluteThreshold int64   `json:"compact_absolute_threshold"`
	CompactRatio             float64 `json:"compact_ratio"`
	CompactMinDelta          int64   `json:"compact_min_delta"`
}

// LoadConfig lê o arquivo e aplica os campos presentes por cima dos
// defaults do engine.
func LoadConfig(path string) (wal.Options, error) {
	opts := wal.DefaultOptions()

	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading config: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return opts, fmt.Errorf("decoding config %s: %w", path, err)
	}

	switch cfg.SyncPolicy {
	case "", "immediate":
		opts.SyncPolicy = wal.SyncImmediate
	case "group_commit":
		opts.SyncPolicy = wal.SyncGroupCommit
	default:
		return opts, fmt.Errorf("config %s: unknown sync_policy %q", path, cfg.SyncPolicy)
	}

	if cfg.GroupCommitIntervalMs > 0 {
		opts.GroupCommitInterval = time.Duration(cfg.GroupCommitIntervalMs) * time.Millisecond
	}
	if cfg.MaxKeySize > 0 {
		opts.MaxKeySize = cfg.MaxKeySize
	}
	if cfg.MaxValueSize > 0 {
		opts.MaxValueSize = cfg.MaxValueSize
	}
	if cfg.InlineValueThreshold > 0 {
		opts.InlineValueThreshold = cfg.InlineValueThreshold
	}
	if cfg.CacheBytes > 0 {
		opts.CacheBytes = cfg.CacheBytes
	}
	opts.Checksums = cfg.Checksums
	if cfg.PreallocateSize > 0 {
		opts.PreallocateSize = cfg.PreallocateSize
	}
	if cfg.CompactAbsoluteThreshold > 0 {
		opts.CompactAbsoluteThreshold = cfg.CompactAbsoluteThreshold
	}
	if cfg.CompactRatio > 0 {
		opts.CompactRatio = cfg.CompactRatio
	}
	if cfg.CompactMinDelta > 0 {
		opts.CompactMinDelta = cfg.CompactMinDelta
	}

	return opts, nil
}
