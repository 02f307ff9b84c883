package config

import (
	"strings"
	"time"

	"github.com/ucla-readable/featherstitch/internal/bytesize"
)

// DefaultConfig returns a complete configuration with every field set
// to its default, suitable for running with no config file at all.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any zero-valued field of cfg with its default.
// Explicit values (from file or environment) are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyTraceDefaults(&cfg.Trace)
	applyCacheDefaults(&cfg.Cache)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyTraceDefaults(cfg *TraceConfig) {
	if cfg.Path == "" {
		cfg.Path = "featherstitch.trace"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.SoftBlocks == 0 {
		cfg.SoftBlocks = 4096
	}
	if cfg.SoftDirtyBlocks == 0 {
		cfg.SoftDirtyBlocks = cfg.SoftBlocks / 2
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4 * bytesize.KiB
	}
	if cfg.MaintainInterval == 0 {
		cfg.MaintainInterval = 2 * time.Second
	}
}
