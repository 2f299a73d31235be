package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. FANGUARD_LOG_LEVEL.
const Prefix = "FANGUARD"

// Config holds the agent configuration.
type Config struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEV" default:"false"`

	// WatchPaths are marked at startup.
	WatchPaths []string `envconfig:"WATCH_PATHS"`
	// MountMarks marks whole mounts instead of single inodes.
	MountMarks bool `envconfig:"MOUNT_MARKS" default:"true"`
	// Permission enables OPEN_PERM / ACCESS_PERM handling.
	Permission  bool          `envconfig:"PERMISSION" default:"true"`
	PollTimeout time.Duration `envconfig:"POLL_TIMEOUT" default:"500ms"`
	QueueSize   int           `envconfig:"QUEUE_SIZE" default:"100"`

	DBPath          string `envconfig:"DB_PATH" default:"/var/lib/fanguard/policy.db"`
	BlockMasquerade bool   `envconfig:"BLOCK_MASQUERADE" default:"true"`
	Quarantine      bool   `envconfig:"QUARANTINE" default:"false"`

	WatchUSB    bool   `envconfig:"WATCH_USB" default:"true"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load loads configuration from environment variables. The result is not
// validated; callers apply their overrides first and then call Validate.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		MountMarks:      true,
		Permission:      true,
		PollTimeout:     500 * time.Millisecond,
		QueueSize:       100,
		DBPath:          "/var/lib/fanguard/policy.db",
		BlockMasquerade: true,
		WatchUSB:        true,
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", c.QueueSize))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("poll timeout must be positive, got %s", c.PollTimeout))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	return errors.Join(errs...)
}
