package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Version   string    `json:"version" mapstructure:"version" yaml:"version"`
	Log       Log       `json:"log" mapstructure:"log" yaml:"log"`
	Scheduler Scheduler `json:"scheduler" mapstructure:"scheduler" yaml:"scheduler"`
	Generator Generator `json:"generator" mapstructure:"generator" yaml:"generator"`
	Writer    Writer    `json:"writer" mapstructure:"writer" yaml:"writer"`
	Stream    Stream    `json:"stream" mapstructure:"stream" yaml:"stream"`
	Store     Store     `json:"store" mapstructure:"store" yaml:"store"`
}

type Log struct {
	Verbose bool `json:"verbose" mapstructure:"verbose" yaml:"verbose"`
}

type Scheduler struct {
	PoolSize          int           `json:"pool_size" mapstructure:"pool_size" yaml:"pool_size"`
	ReconcileInterval time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
}

type Generator struct {
	NullRate       float64 `json:"null_rate" mapstructure:"null_rate" yaml:"null_rate"`
	UniqueAttempts int     `json:"unique_attempts" mapstructure:"unique_attempts" yaml:"unique_attempts"`
	PKAttempts     int     `json:"pk_attempts" mapstructure:"pk_attempts" yaml:"pk_attempts"`
	// DefaultFKRows is how many minimal rows are created in an empty referenced table.
	DefaultFKRows int `json:"default_fk_rows" mapstructure:"default_fk_rows" yaml:"default_fk_rows"`
	PoolLimit     int `json:"pool_limit" mapstructure:"pool_limit" yaml:"pool_limit"`
}

type Writer struct {
	FlushSize  int `json:"flush_size" mapstructure:"flush_size" yaml:"flush_size"`
	MaxRetries int `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`
}

type Stream struct {
	ConnectTimeout time.Duration `json:"connect_timeout" mapstructure:"connect_timeout" yaml:"connect_timeout"`
	SendTimeout    time.Duration `json:"send_timeout" mapstructure:"send_timeout" yaml:"send_timeout"`
	FlushEvery     int           `json:"flush_every" mapstructure:"flush_every" yaml:"flush_every"`
}

type Store struct {
	TasksFile     string `json:"tasks_file" mapstructure:"tasks_file" yaml:"tasks_file"`
	HistoryURL    string `json:"history_url" mapstructure:"history_url" yaml:"history_url"`
	HistoryURLEnv string `json:"history_url_env" mapstructure:"history_url_env" yaml:"history_url_env"`
}

func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if viper.GetBool("verbose") {
		cfg.Log.Verbose = true
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Scheduler.PoolSize == 0 {
		c.Scheduler.PoolSize = 10
	}
	if c.Scheduler.ReconcileInterval == 0 {
		c.Scheduler.ReconcileInterval = 60 * time.Second
	}
	if c.Generator.NullRate == 0 {
		c.Generator.NullRate = 0.1
	}
	if c.Generator.UniqueAttempts == 0 {
		c.Generator.UniqueAttempts = 100
	}
	if c.Generator.PKAttempts == 0 {
		c.Generator.PKAttempts = 1000
	}
	if c.Generator.DefaultFKRows == 0 {
		c.Generator.DefaultFKRows = 10
	}
	if c.Generator.PoolLimit == 0 {
		c.Generator.PoolLimit = 10000
	}
	if c.Writer.FlushSize == 0 {
		c.Writer.FlushSize = 1000
	}
	if c.Writer.MaxRetries == 0 {
		c.Writer.MaxRetries = 3
	}
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = 5 * time.Second
	}
	if c.Stream.SendTimeout == 0 {
		c.Stream.SendTimeout = 10 * time.Second
	}
	if c.Stream.FlushEvery == 0 {
		c.Stream.FlushEvery = 100
	}
	if c.Store.TasksFile == "" {
		c.Store.TasksFile = "tasks.yaml"
	}
	if c.Store.HistoryURLEnv == "" {
		c.Store.HistoryURLEnv = "DATAGEN_HISTORY_URL"
	}
	if c.Store.HistoryURL == "" {
		c.Store.HistoryURL = "sqlite://datagen_history.db"
	}
}

// GetHistoryURL prefers the environment variable over the configured URL.
func (c *Config) GetHistoryURL() string {
	if url := os.Getenv(c.Store.HistoryURLEnv); url != "" {
		return url
	}
	return c.Store.HistoryURL
}

// HistoryProvider derives the database provider from the history URL scheme.
func (c *Config) HistoryProvider() string {
	return ProviderFromURL(c.GetHistoryURL())
}

func ProviderFromURL(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgresql"
	case strings.HasPrefix(url, "mysql://"):
		return "mysql"
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"):
		return "sqlite"
	default:
		return ""
	}
}

func (c *Config) Validate() error {
	if c.Scheduler.PoolSize <= 0 {
		return fmt.Errorf("scheduler.pool_size must be positive, got %d", c.Scheduler.PoolSize)
	}
	if c.Scheduler.ReconcileInterval < time.Second {
		return fmt.Errorf("scheduler.reconcile_interval must be at least 1s, got %s", c.Scheduler.ReconcileInterval)
	}
	if c.Writer.FlushSize <= 0 {
		return fmt.Errorf("writer.flush_size must be positive, got %d", c.Writer.FlushSize)
	}
	if c.Writer.MaxRetries < 0 {
		return fmt.Errorf("writer.max_retries cannot be negative")
	}
	if c.Generator.NullRate < 0 || c.Generator.NullRate > 1 {
		return fmt.Errorf("generator.null_rate must be within [0, 1], got %v", c.Generator.NullRate)
	}

	supportedProviders := []string{"postgresql", "mysql", "sqlite"}
	provider := c.HistoryProvider()
	supported := false
	for _, p := range supportedProviders {
		if provider == p {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported history store URL: %s. Supported providers: %v", c.GetHistoryURL(), supportedProviders)
	}

	if c.Store.TasksFile == "" {
		return fmt.Errorf("store.tasks_file cannot be empty")
	}

	return nil
}
