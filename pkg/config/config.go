// Package config loads the canopy server configuration from YAML.
//
// A file only needs to name the values it changes; everything else keeps
// the defaults from Default:
//
//	listenAddr: ":8080"
//	productionMode: true
//	session:
//	  timeout: 15m
//	messages:
//	  sessionExpired:
//	    enabled: true
//	    caption: null
//	    message: null
//	    url: /login
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/canopy/pkg/log"
	"github.com/cuemby/canopy/pkg/types"
)

// Config is the complete server configuration
type Config struct {
	ListenAddr string `yaml:"listenAddr"`
	AdminAddr  string `yaml:"adminAddr"`
	DataDir    string `yaml:"dataDir"`
	LayoutDir  string `yaml:"layoutDir"`

	// ProductionMode hides debug output and error details from clients
	ProductionMode bool `yaml:"productionMode"`
	// DisableXSRFProtection stops the security key from being checked
	DisableXSRFProtection bool `yaml:"disableXsrfProtection"`

	Log       LogConfig            `yaml:"log"`
	Session   SessionConfig        `yaml:"session"`
	RateLimit RateLimitConfig      `yaml:"rateLimit"`
	Messages  types.SystemMessages `yaml:"messages"`
}

// LogConfig selects the log level and format
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SessionConfig controls session expiry
type SessionConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
	RecordRetention time.Duration `yaml:"recordRetention"`
}

// RateLimitConfig limits UIDL requests per session. A zero rate disables
// the limit.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		AdminAddr:  ":9090",
		DataDir:    "./canopy-data",
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
		Session: SessionConfig{
			Timeout:         30 * time.Minute,
			SweepInterval:   time.Minute,
			RecordRetention: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Messages: *types.DefaultSystemMessages(),
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would break the server at runtime
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listenAddr is required"))
	}
	if c.Session.Timeout < 0 {
		errs = append(errs, errors.New("session.timeout must not be negative"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweepInterval must be positive"))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rateLimit.requestsPerSecond must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rateLimit.burst must be at least 1"))
	}
	if !log.Level(c.Log.Level).Valid() {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// LogConfig converts the log section for log.Init
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}
