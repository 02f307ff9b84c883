package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ucla-readable/featherstitch/internal/logger"
	"github.com/ucla-readable/featherstitch/pkg/blockdev"
	"github.com/ucla-readable/featherstitch/pkg/metrics"
)

var (
	devicePath string
	walPath    string
	numBlocks  uint64
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the featherstitch stack in the foreground",
	Long: `Start runs the engine/cache/device stack until interrupted,
flushing and syncing cleanly on SIGINT/SIGTERM.

With no --device, the leaf block device is in-memory and does not
survive the process; pass --device to persist to a file.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&devicePath, "device", "", "path to a file-backed device (default: in-memory)")
	startCmd.Flags().StringVar(&walPath, "wal", "", "path to the dirty-block WAL (default: disabled)")
	startCmd.Flags().Uint64Var(&numBlocks, "num-blocks", 4096, "number of blocks the leaf device exposes")
}

func runStart(cmd *cobra.Command, args []string) error {
	s, err := buildStack(devicePath, numBlocks, walPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			logger.Error("stack close failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsSrv *http.Server
	if s.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "port", s.cfg.Metrics.Port)
	}

	interval := s.cfg.Cache.MaintainInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("fstitchd running", "num_blocks", numBlocks, "device", deviceLabel(devicePath))

loop:
	for {
		select {
		case <-ticker.C:
			if _, err := s.cache.MaintainDirtyLimit(ctx); err != nil {
				logger.Error("maintain dirty limit failed", "error", err)
			}
		case <-sigChan:
			logger.Info("shutdown signal received, flushing")
			break loop
		}
	}

	signal.Stop(sigChan)
	if _, err := s.cache.Flush(ctx, blockdev.FlushDevice); err != nil {
		logger.Error("final flush failed", "error", err)
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("fstitchd stopped")
	return nil
}

func deviceLabel(path string) string {
	if path == "" {
		return "memory"
	}
	return path
}
