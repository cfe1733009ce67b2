package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "EXECCORE"

// Config holds all application configuration.
type Config struct {
	Temp    TempConfig
	Spill   SpillConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// TempConfig holds temp storage lifecycle configuration.
type TempConfig struct {
	// Root is the directory temp items are created under. Empty means os.TempDir().
	Root           string        `envconfig:"ROOT"`
	Prefix         string        `envconfig:"PREFIX" default:"execcore"`
	RenameAttempts int           `envconfig:"RENAME_ATTEMPTS" default:"5"`
	RenameDelay    time.Duration `envconfig:"RENAME_DELAY" default:"500ms"`
	OrphanMaxAge   time.Duration `envconfig:"ORPHAN_MAX_AGE" default:"24h"`
	// SweepRate caps orphan deletions per second; 0 is unlimited.
	SweepRate float64 `envconfig:"SWEEP_RATE" default:"0"`
}

// SpillConfig holds spillover buffer sizing.
type SpillConfig struct {
	HeapLimit       int64 `envconfig:"HEAP_LIMIT" default:"8388608"`
	InitialHeapSize int   `envconfig:"INITIAL_HEAP_SIZE" default:"4096"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"false"`
	Address string `envconfig:"ADDR" default:"127.0.0.1:9464"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Temp: TempConfig{
			Prefix:         "execcore",
			RenameAttempts: 5,
			RenameDelay:    500 * time.Millisecond,
			OrphanMaxAge:   24 * time.Hour,
		},
		Spill: SpillConfig{
			HeapLimit:       8 * 1024 * 1024,
			InitialHeapSize: 4096,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

// fileConfig is the on-disk shape. Durations are strings ("500ms", "24h").
type fileConfig struct {
	Temp struct {
		Root           string  `toml:"root" yaml:"root"`
		Prefix         string  `toml:"prefix" yaml:"prefix"`
		RenameAttempts int     `toml:"rename_attempts" yaml:"rename_attempts"`
		RenameDelay    string  `toml:"rename_delay" yaml:"rename_delay"`
		OrphanMaxAge   string  `toml:"orphan_max_age" yaml:"orphan_max_age"`
		SweepRate      float64 `toml:"sweep_rate" yaml:"sweep_rate"`
	} `toml:"temp" yaml:"temp"`
	Spill struct {
		HeapLimit       int64 `toml:"heap_limit" yaml:"heap_limit"`
		InitialHeapSize int   `toml:"initial_heap_size" yaml:"initial_heap_size"`
	} `toml:"spill" yaml:"spill"`
	Logging struct {
		Level       string `toml:"level" yaml:"level"`
		Development *bool  `toml:"development" yaml:"development"`
	} `toml:"logging" yaml:"logging"`
	Metrics struct {
		Enabled *bool  `toml:"enabled" yaml:"enabled"`
		Address string `toml:"address" yaml:"address"`
	} `toml:"metrics" yaml:"metrics"`
}

// LoadFile loads environment configuration and overlays the values set in
// a TOML (.toml) or YAML (.yaml, .yml) file. Values present in the file win.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := fc.apply(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Temp.Root != "" {
		cfg.Temp.Root = fc.Temp.Root
	}
	if fc.Temp.Prefix != "" {
		cfg.Temp.Prefix = fc.Temp.Prefix
	}
	if fc.Temp.RenameAttempts > 0 {
		cfg.Temp.RenameAttempts = fc.Temp.RenameAttempts
	}
	if fc.Temp.RenameDelay != "" {
		d, err := time.ParseDuration(fc.Temp.RenameDelay)
		if err != nil {
			return fmt.Errorf("temp.rename_delay: %w", err)
		}
		cfg.Temp.RenameDelay = d
	}
	if fc.Temp.OrphanMaxAge != "" {
		d, err := time.ParseDuration(fc.Temp.OrphanMaxAge)
		if err != nil {
			return fmt.Errorf("temp.orphan_max_age: %w", err)
		}
		cfg.Temp.OrphanMaxAge = d
	}
	if fc.Temp.SweepRate > 0 {
		cfg.Temp.SweepRate = fc.Temp.SweepRate
	}
	if fc.Spill.HeapLimit > 0 {
		cfg.Spill.HeapLimit = fc.Spill.HeapLimit
	}
	if fc.Spill.InitialHeapSize > 0 {
		cfg.Spill.InitialHeapSize = fc.Spill.InitialHeapSize
	}
	if fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
	if fc.Logging.Development != nil {
		cfg.Logging.Development = *fc.Logging.Development
	}
	if fc.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *fc.Metrics.Enabled
	}
	if fc.Metrics.Address != "" {
		cfg.Metrics.Address = fc.Metrics.Address
	}
	return nil
}
