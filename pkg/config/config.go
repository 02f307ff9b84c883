// Package config loads the daemon's static configuration: logging,
// metrics, the debug trace sink, the dependency engine, and the
// write-back cache's block budget. Dynamic state (which block device
// stack to mount, which patchgroups are live) is not configuration —
// it is set up by the cmd/fstitchd commands when they start.
//
// Precedence (highest to lowest): environment variables (FSTITCH_*),
// the configuration file, then the defaults below. Environment
// variables override only keys that the configuration file sets; when
// no file is found, Load returns the defaults without consulting the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ucla-readable/featherstitch/internal/bytesize"
)

// Config is the daemon's static configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Trace   TraceConfig   `mapstructure:"trace" yaml:"trace"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Level is the minimum level to emit: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "text" (color when the output is a terminal) or "json".
	Format string `mapstructure:"format" yaml:"format"`
	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// TraceConfig configures the §6 debug trace sink.
type TraceConfig struct {
	// Enabled turns on trace emission (engine.SetTraceHook).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Path is the trace file to append events to.
	Path string `mapstructure:"path" yaml:"path"`
	// BuildDate is the string written once into the trace header;
	// analysis tools use it to match the trace against a build. Left
	// empty, the daemon fills in its own build date at startup.
	BuildDate string `mapstructure:"build_date" yaml:"build_date,omitempty"`
}

// EngineConfig controls the dependency engine.
type EngineConfig struct {
	// CycleCheck enables the O(V+E) acyclicity check in AddDepend.
	// Off by default, matching the original's performance-sensitive
	// default; turn on for S6-style correctness testing.
	CycleCheck bool `mapstructure:"cycle_check" yaml:"cycle_check"`
}

// CacheConfig specifies the write-back cache's block budget (§4.7).
type CacheConfig struct {
	// SoftBlocks bounds total cached blocks (clean + dirty).
	SoftBlocks int `mapstructure:"soft_blocks" validate:"required,gt=0" yaml:"soft_blocks"`
	// SoftDirtyBlocks bounds dirty blocks before back-pressure
	// (GetBlockSpace) and the periodic CLIP flush kick in.
	SoftDirtyBlocks int `mapstructure:"soft_dirty_blocks" validate:"required,gt=0" yaml:"soft_dirty_blocks"`
	// BlockSize is the device's block size in bytes; informational for
	// the lower device constructors, not enforced here.
	BlockSize bytesize.ByteSize `mapstructure:"block_size" yaml:"block_size,omitempty"`
	// MaintainInterval is how often the daemon calls MaintainDirtyLimit.
	MaintainInterval time.Duration `mapstructure:"maintain_interval" yaml:"maintain_interval"`
}

// Load reads configuration from configPath (or the default location if
// empty), falling back to defaults when no file is found.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FSTITCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "featherstitch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "featherstitch")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
