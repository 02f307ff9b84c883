package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/ucla-readable/featherstitch/internal/logger"
	"github.com/ucla-readable/featherstitch/internal/trace"
	"github.com/ucla-readable/featherstitch/internal/walpersist"
	"github.com/ucla-readable/featherstitch/pkg/blockdev"
	"github.com/ucla-readable/featherstitch/pkg/config"
	"github.com/ucla-readable/featherstitch/pkg/engine"
	"github.com/ucla-readable/featherstitch/pkg/metrics"
	"github.com/ucla-readable/featherstitch/pkg/wbcache"
)

// stack bundles the assembled block-device stack so the start/bench/
// group commands can share one construction path.
type stack struct {
	cfg    *config.Config
	lower  blockdev.Device
	eng    *engine.Engine
	cache  *wbcache.Cache
	trace  *os.File
	wal    walpersist.Persister
}

// buildStack loads configuration, opens the leaf device (memory unless
// devicePath is set), and wires the engine/cache with whatever
// observability the config enables. When walPath is non-empty, dirty
// block bookkeeping is persisted there across restarts.
func buildStack(devicePath string, numBlocks uint64, walPath string) (*stack, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if cfg.Metrics.Enabled && !metrics.IsEnabled() {
		metrics.InitRegistry()
	}

	blockSize := int(cfg.Cache.BlockSize)
	if blockSize <= 0 {
		blockSize = 4096
	}

	var lower blockdev.Device
	if devicePath == "" {
		lower = blockdev.NewMemDisk(blockSize, numBlocks, 0)
	} else {
		lower, err = blockdev.OpenFsDisk(devicePath, blockSize, numBlocks, 0)
		if err != nil {
			return nil, fmt.Errorf("open device %s: %w", devicePath, err)
		}
	}

	eng := engine.New()
	eng.CycleCheck = cfg.Engine.CycleCheck

	if metrics.IsEnabled() {
		eng.SetMetrics(metrics.NewEngineMetrics())
	}

	s := &stack{cfg: cfg, lower: lower, eng: eng}

	if cfg.Trace.Enabled {
		f, err := os.OpenFile(cfg.Trace.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file %s: %w", cfg.Trace.Path, err)
		}
		w := trace.NewWriter(f)
		em := trace.NewEmitter(w, func() uint32 { return uint32(time.Now().Unix()) })
		buildDate := cfg.Trace.BuildDate
		if buildDate == "" {
			buildDate = Date
		}
		if err := w.WriteHeader(buildDate, uint32(time.Now().Unix()), em.Schema()); err != nil {
			f.Close()
			return nil, fmt.Errorf("write trace header: %w", err)
		}
		eng.SetTraceHook(em)
		s.trace = f
	}

	cache := wbcache.New(lower, eng, 1, cfg.Cache.SoftBlocks, cfg.Cache.SoftDirtyBlocks)
	if metrics.IsEnabled() {
		cache.SetMetrics(metrics.NewCacheMetrics())
	}

	if walPath != "" {
		wal, err := walpersist.NewFilePersister(walPath)
		if err != nil {
			return nil, fmt.Errorf("open wal %s: %w", walPath, err)
		}
		if dirty, err := wal.Recover(); err != nil {
			wal.Close()
			return nil, fmt.Errorf("recover wal %s: %w", walPath, err)
		} else if len(dirty) > 0 {
			logger.Warn("recovered dirty blocks from prior run; lower device may be stale for these",
				"count", len(dirty))
		}
		cache.SetPersister(wal)
		s.wal = wal
	}
	s.cache = cache

	return s, nil
}

// close closes the WAL persister (which syncs it first), the trace
// file, and the lower device if it has a Close method. It does not
// flush the cache. Callers should defer this after a successful
// buildStack.
func (s *stack) close() error {
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			logger.Error("walpersist close failed", "error", err)
		}
	}
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			logger.Error("trace file close failed", "error", err)
		}
	}
	if closer, ok := s.lower.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
