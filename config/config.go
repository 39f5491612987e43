// Package config defines the configuration surface consumed by the cleanup
// core: teardown time budgets, retry policy, handle detection switches, and
// per-resource-type timeout overrides. Values are loaded through viper and
// validated before use; a file watcher can push changes into a running
// Manager.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the cleanup engine configuration.
type Config struct {
	// GracefulTimeout is the default time budget for one teardown attempt.
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	// ForceTimeout is the emergency ceiling used by force passes.
	ForceTimeout time.Duration `mapstructure:"force_timeout"`
	// MaxRetries is the total number of attempts per resource (not
	// additional retries; 3 means at most three attempts).
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the wait between attempts for the same resource.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// DetectHandles enables handle snapshots around each cleanup pass.
	DetectHandles bool `mapstructure:"detect_handles"`
	// HandleDetectionTimeout bounds the time spent taking handle snapshots.
	HandleDetectionTimeout time.Duration `mapstructure:"handle_detection_timeout"`
	// StrictMode promotes detected leaks from report warnings to report
	// errors.
	StrictMode bool `mapstructure:"strict_mode"`
	// TypeTimeouts overrides GracefulTimeout per resource type
	// (e.g. "database": 10s). A per-resource timeout still wins.
	TypeTimeouts map[string]time.Duration `mapstructure:"type_timeouts"`

	// Logging controls the engine's own structured log output.
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Enabled turns logging on or off.
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// File is the log file path; empty means stderr.
	File string `mapstructure:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		GracefulTimeout:        30 * time.Second,
		ForceTimeout:           5 * time.Second,
		MaxRetries:             3,
		RetryDelay:             time.Second,
		DetectHandles:          true,
		HandleDetectionTimeout: 5 * time.Second,
		StrictMode:             false,
		TypeTimeouts:           map[string]time.Duration{},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// SetDefaults registers default values with the given viper instance.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("graceful_timeout", defaults.GracefulTimeout)
	v.SetDefault("force_timeout", defaults.ForceTimeout)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("retry_delay", defaults.RetryDelay)
	v.SetDefault("detect_handles", defaults.DetectHandles)
	v.SetDefault("handle_detection_timeout", defaults.HandleDetectionTimeout)
	v.SetDefault("strict_mode", defaults.StrictMode)
	v.SetDefault("type_timeouts", map[string]string{})

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from the given viper instance into a Config
// and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.TypeTimeouts == nil {
		cfg.TypeTimeouts = map[string]time.Duration{}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LoadFile loads configuration from a YAML file, applying defaults for any
// keys the file omits. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return Load(v)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(v)
}

// Patch is a partial configuration for shallow merges. Nil fields leave the
// current value untouched. A non-nil TypeTimeouts replaces the whole map.
type Patch struct {
	GracefulTimeout        *time.Duration
	ForceTimeout           *time.Duration
	MaxRetries             *int
	RetryDelay             *time.Duration
	DetectHandles          *bool
	HandleDetectionTimeout *time.Duration
	StrictMode             *bool
	TypeTimeouts           map[string]time.Duration
}

// Apply returns a copy of c with the patch's non-nil fields merged in.
func (c Config) Apply(p Patch) Config {
	if p.GracefulTimeout != nil {
		c.GracefulTimeout = *p.GracefulTimeout
	}
	if p.ForceTimeout != nil {
		c.ForceTimeout = *p.ForceTimeout
	}
	if p.MaxRetries != nil {
		c.MaxRetries = *p.MaxRetries
	}
	if p.RetryDelay != nil {
		c.RetryDelay = *p.RetryDelay
	}
	if p.DetectHandles != nil {
		c.DetectHandles = *p.DetectHandles
	}
	if p.HandleDetectionTimeout != nil {
		c.HandleDetectionTimeout = *p.HandleDetectionTimeout
	}
	if p.StrictMode != nil {
		c.StrictMode = *p.StrictMode
	}
	if p.TypeTimeouts != nil {
		c.TypeTimeouts = p.TypeTimeouts
	}
	return c
}

// Diff returns a Patch turning old into new, with only changed fields set.
// Used by the file watcher to push minimal updates into a Manager.
func Diff(old, updated *Config) Patch {
	var p Patch
	if updated.GracefulTimeout != old.GracefulTimeout {
		p.GracefulTimeout = &updated.GracefulTimeout
	}
	if updated.ForceTimeout != old.ForceTimeout {
		p.ForceTimeout = &updated.ForceTimeout
	}
	if updated.MaxRetries != old.MaxRetries {
		p.MaxRetries = &updated.MaxRetries
	}
	if updated.RetryDelay != old.RetryDelay {
		p.RetryDelay = &updated.RetryDelay
	}
	if updated.DetectHandles != old.DetectHandles {
		p.DetectHandles = &updated.DetectHandles
	}
	if updated.HandleDetectionTimeout != old.HandleDetectionTimeout {
		p.HandleDetectionTimeout = &updated.HandleDetectionTimeout
	}
	if updated.StrictMode != old.StrictMode {
		p.StrictMode = &updated.StrictMode
	}
	if !equalTimeouts(old.TypeTimeouts, updated.TypeTimeouts) {
		p.TypeTimeouts = updated.TypeTimeouts
	}
	return p
}

func equalTimeouts(a, b map[string]time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
