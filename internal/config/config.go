package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. CHATDIGEST_MODEL_ENDPOINT.
const EnvPrefix = "CHATDIGEST"

// Config is the root of the application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Source   SourceConfig   `mapstructure:"source" yaml:"source"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Summary  SummaryConfig  `mapstructure:"summary" yaml:"summary"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Delivery DeliveryConfig `mapstructure:"delivery" yaml:"delivery"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig configures the archive database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SourceConfig selects the chat to digest and bounds retrieval.
type SourceConfig struct {
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
	FetchCap int    `mapstructure:"fetch_cap" yaml:"fetch_cap"`
	InboxDir string `mapstructure:"inbox_dir" yaml:"inbox_dir"` // Telegram exports dropped here are imported by serve
}

// ModelConfig configures the model provider.
type ModelConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	KeepAlive   string        `mapstructure:"keep_alive" yaml:"keep_alive"`
	Stream      bool          `mapstructure:"stream" yaml:"stream"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
}

// SummaryConfig controls formatting, batching and prompting.
type SummaryConfig struct {
	TokenBudget          int      `mapstructure:"token_budget" yaml:"token_budget"`
	Context              string   `mapstructure:"context" yaml:"context"`
	Guidelines           []string `mapstructure:"guidelines" yaml:"guidelines"`
	RenderUpstream       bool     `mapstructure:"render_upstream" yaml:"render_upstream"`
	IncludeSenderName    bool     `mapstructure:"include_sender_name" yaml:"include_sender_name"`
	ExcludeSelfGenerated bool     `mapstructure:"exclude_self_generated" yaml:"exclude_self_generated"`
	ReplaceURLs          bool     `mapstructure:"replace_urls" yaml:"replace_urls"`
	StartMarker          string   `mapstructure:"start_marker" yaml:"start_marker"`
	Disclaimer           string   `mapstructure:"disclaimer" yaml:"disclaimer"`
	Timezone             string   `mapstructure:"timezone" yaml:"timezone"`
}

// Location resolves Timezone, falling back to time.Local.
func (c *SummaryConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CacheConfig configures the step cache.
type CacheConfig struct {
	Kind        string   `mapstructure:"kind" yaml:"kind"`     // file, sqlite
	Shards      []string `mapstructure:"shards" yaml:"shards"` // merged left to right, first seen wins
	Output      string   `mapstructure:"output" yaml:"output"` // shard flushed at the end of a run
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
}

// DeliveryConfig configures digest delivery.
type DeliveryConfig struct {
	Kind     string `mapstructure:"kind" yaml:"kind"` // telegram, stdout, none
	APIBase  string `mapstructure:"api_base" yaml:"api_base"`
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
}

// RetryConfig configures the retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// ScheduleConfig configures the scheduled digest.
type ScheduleConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Cron    string        `mapstructure:"cron" yaml:"cron"`
	Span    time.Duration `mapstructure:"span" yaml:"span"`
	Lag     time.Duration `mapstructure:"lag" yaml:"lag"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// Load reads the configuration file.
// Precedence: ENV > config file > defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expandedPath)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Summary.TokenBudget < 1 {
		return fmt.Errorf("summary.token_budget must be positive, got %d", c.Summary.TokenBudget)
	}
	if c.Source.PageSize < 1 {
		return fmt.Errorf("source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if c.Source.FetchCap < 1 {
		return fmt.Errorf("source.fetch_cap must be positive, got %d", c.Source.FetchCap)
	}
	switch c.Cache.Kind {
	case "file", "sqlite":
	default:
		return fmt.Errorf("cache.kind must be file or sqlite, got %q", c.Cache.Kind)
	}
	switch c.Delivery.Kind {
	case "telegram", "stdout", "none":
	default:
		return fmt.Errorf("delivery.kind must be telegram, stdout or none, got %q", c.Delivery.Kind)
	}
	if _, err := c.Summary.Location(); err != nil {
		return err
	}
	return nil
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // 0600 for security (contains tokens)
}
