// Package config loads the layered application configuration: hardcoded
// defaults, then the YAML config file, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// TargetConfig is a single scheduled scan target.
type TargetConfig struct {
	Subnet   string `koanf:"subnet" validate:"required"`
	Interval string `koanf:"interval"`
	Label    string `koanf:"label"`
}

// IntervalDuration parses the target's interval string ("30s", "5m", "2h").
func (t TargetConfig) IntervalDuration() (time.Duration, error) {
	return ParseInterval(t.Interval)
}

// LogConfig controls console logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=text json"`
}

// ScanConfig carries the scan-tuning knobs.
type ScanConfig struct {
	Ports       []int         `koanf:"ports"`
	Timeout     time.Duration `koanf:"timeout"`
	MDNSTimeout time.Duration `koanf:"mdns_timeout"`
	Workers     int           `koanf:"workers" validate:"omitempty,min=1,max=512"`
	Ping        bool          `koanf:"ping"`
	Fingerprint bool          `koanf:"fingerprint"`
}

// Config is the top-level application configuration.
type Config struct {
	Targets  []TargetConfig `koanf:"targets" validate:"dive"`
	DBPath   string         `koanf:"db_path"`
	RulesDir string         `koanf:"rules_dir"`
	OUIPath  string         `koanf:"oui_csv"`
	Log      LogConfig      `koanf:"log"`
	Scan     ScanConfig     `koanf:"scan"`
}

// Dir returns the application home directory (~/.bigr).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bigr"
	}
	return filepath.Join(home, ".bigr")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the baseline configuration before file and flag layers.
func Default() Config {
	return Config{
		DBPath:   filepath.Join(Dir(), "bigr.db"),
		RulesDir: filepath.Join(Dir(), "rules"),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scan: ScanConfig{
			Timeout:     2 * time.Second,
			MDNSTimeout: 8 * time.Second,
			Workers:     20,
			Ping:        true,
			Fingerprint: true,
		},
	}
}

// Load assembles the configuration: defaults, then the YAML file at path
// (a missing file is fine), then the given flag set (nil to skip).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	err := k.Load(confmap.Provider(map[string]any{
		"db_path":           defaults.DBPath,
		"rules_dir":         defaults.RulesDir,
		"log.level":         defaults.Log.Level,
		"log.format":        defaults.Log.Format,
		"scan.timeout":      defaults.Scan.Timeout,
		"scan.mdns_timeout": defaults.Scan.MDNSTimeout,
		"scan.workers":      defaults.Scan.Workers,
		"scan.ping":         defaults.Scan.Ping,
		"scan.fingerprint":  defaults.Scan.Fingerprint,
	}, "."), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the interval strings.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, target := range c.Targets {
		if target.Interval == "" {
			continue
		}
		if _, err := ParseInterval(target.Interval); err != nil {
			return fmt.Errorf("invalid configuration: target %s: %w", target.Subnet, err)
		}
	}
	return nil
}

// ParseInterval converts an interval string with an s/m/h suffix into a
// duration. An empty string means the default cadence of five minutes.
func ParseInterval(interval string) (time.Duration, error) {
	if interval == "" {
		return 5 * time.Minute, nil
	}

	suffix := strings.ToLower(interval[len(interval)-1:])
	var unit time.Duration
	switch suffix {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	default:
		return 0, fmt.Errorf("invalid interval %q: use s/m/h suffix (e.g. '5m', '2h', '30s')", interval)
	}

	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval %q: numeric part must be a positive integer", interval)
	}
	return time.Duration(value) * unit, nil
}
