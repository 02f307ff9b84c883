package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ucla-readable/featherstitch/internal/bytesize"
)

func TestLoadWithNoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Cache.SoftBlocks != 4096 {
		t.Errorf("Cache.SoftBlocks = %d, want 4096", cfg.Cache.SoftBlocks)
	}
	if cfg.Cache.SoftDirtyBlocks != 2048 {
		t.Errorf("Cache.SoftDirtyBlocks = %d, want 2048", cfg.Cache.SoftDirtyBlocks)
	}
}

func TestLoadAppliesDefaultsOverPartialFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
logging:
  level: debug

cache:
  soft_blocks: 100
  soft_dirty_blocks: 40
  block_size: 8Ki
  maintain_interval: 500ms
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG (normalized)", cfg.Logging.Level)
	}
	if cfg.Cache.SoftBlocks != 100 {
		t.Errorf("Cache.SoftBlocks = %d, want 100", cfg.Cache.SoftBlocks)
	}
	if cfg.Cache.BlockSize != 8*bytesize.KiB {
		t.Errorf("Cache.BlockSize = %d, want %d", cfg.Cache.BlockSize, 8*bytesize.KiB)
	}
	if cfg.Cache.MaintainInterval != 500*time.Millisecond {
		t.Errorf("Cache.MaintainInterval = %v, want 500ms", cfg.Cache.MaintainInterval)
	}
}

func TestValidateRejectsDirtyExceedingSoft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.SoftBlocks = 10
	cfg.Cache.SoftDirtyBlocks = 20
	if err := Validate(cfg); err == nil {
		t.Error("expected error when soft_dirty_blocks exceeds soft_blocks")
	}
}

func TestValidateRejectsTraceEnabledWithoutPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trace.Enabled = true
	cfg.Trace.Path = ""
	if err := Validate(cfg); err == nil {
		t.Error("expected error when trace.enabled is true without a path")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "WARN"
	cfg.Cache.SoftBlocks = 512
	cfg.Cache.SoftDirtyBlocks = 128

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Logging.Level != "WARN" {
		t.Errorf("Logging.Level = %q, want WARN", got.Logging.Level)
	}
	if got.Cache.SoftBlocks != 512 {
		t.Errorf("Cache.SoftBlocks = %d, want 512", got.Cache.SoftBlocks)
	}
}
