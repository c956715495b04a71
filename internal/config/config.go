// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Events   EventsConfig   `mapstructure:"events"`
	Lock     LockConfig     `mapstructure:"lock"`
	Store    StoreConfig    `mapstructure:"store"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// RedisConfig locates the Redis server shared by queue, events and lock.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Provider   string       `mapstructure:"provider"`
	Depth      int          `mapstructure:"depth"`
	Prefix     string       `mapstructure:"prefix"`
	ConsumerID string       `mapstructure:"consumer_id"`
	PubSub     PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings for the queue.
type PubSubConfig struct {
	ProjectID          string `mapstructure:"project_id"`
	SubscriptionSuffix string `mapstructure:"subscription_suffix"`
}

// EventsConfig selects the event channel backend.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	Channel   string `mapstructure:"channel"` // Redis channel or Pub/Sub topic id
	ProjectID string `mapstructure:"project_id"`
}

// LockConfig configures the crawl lock.
type LockConfig struct {
	Provider string        `mapstructure:"provider"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StoreConfig selects job/profile persistence.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// FetcherConfig configures page rendering.
type FetcherConfig struct {
	Mode              string        `mapstructure:"mode"`
	UserAgent         string        `mapstructure:"user_agent"`
	ViewportWidth     int64         `mapstructure:"viewport_width"`
	ViewportHeight    int64         `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleMin         time.Duration `mapstructure:"settle_min"`
	SettleMax         time.Duration `mapstructure:"settle_max"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	RatePerHost       float64       `mapstructure:"rate_per_host"`
	BurstPerHost      int           `mapstructure:"burst_per_host"`
	RespectRobots     bool          `mapstructure:"respect_robots"`

	// BlockedDomains lists hosts ("example.org", "*.example.org") never crawled.
	BlockedDomains []string `mapstructure:"blocked_domains"`

	// PromotionThreshold is the body size under which script-heavy pages
	// are re-fetched headless in auto mode.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// LLMConfig selects the AI provider.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds the stage bounds.
type PipelineConfig struct {
	FilterBatchMax   int     `mapstructure:"filter_batch_max"`
	DescriptionMax   int     `mapstructure:"description_max"`
	ScorePromptMax   int     `mapstructure:"score_prompt_max"`
	DraftPromptMax   int     `mapstructure:"draft_prompt_max"`
	FallbackProfile  string  `mapstructure:"fallback_profile"`
	ScoreTemperature float32 `mapstructure:"score_temperature"`
	DraftTemperature float32 `mapstructure:"draft_temperature"`
}

// WorkerConfig controls which queues are consumed and how many workers run per queue.
type WorkerConfig struct {
	Queues      []string `mapstructure:"queues"`
	Concurrency int      `mapstructure:"concurrency"`
}

// RetryConfig bounds stage retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ArchiveConfig selects where rendered detail pages are archived.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.prefix", "analyzer")
	v.SetDefault("queue.pubsub.subscription_suffix", "workers")
	v.SetDefault("events.provider", "memory")
	v.SetDefault("events.channel", "job_updates")
	v.SetDefault("lock.provider", "memory")
	v.SetDefault("lock.key", "system:crawling")
	v.SetDefault("lock.ttl", 10*time.Minute)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.auto_migrate", true)
	v.SetDefault("fetcher.mode", "headless")
	v.SetDefault("fetcher.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetcher.viewport_width", 1920)
	v.SetDefault("fetcher.viewport_height", 1080)
	v.SetDefault("fetcher.navigation_timeout", 60*time.Second)
	v.SetDefault("fetcher.settle_min", 2*time.Second)
	v.SetDefault("fetcher.settle_max", 4*time.Second)
	v.SetDefault("fetcher.max_parallel", 2)
	v.SetDefault("fetcher.rate_per_host", 1.0)
	v.SetDefault("fetcher.burst_per_host", 2)
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.blocked_domains", []string{})
	v.SetDefault("fetcher.promotion_threshold", 2048)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("pipeline.filter_batch_max", 60)
	v.SetDefault("pipeline.description_max", 4000)
	v.SetDefault("pipeline.score_prompt_max", 3000)
	v.SetDefault("pipeline.draft_prompt_max", 2000)
	v.SetDefault("pipeline.fallback_profile", "Python Dev")
	v.SetDefault("pipeline.score_temperature", 0.0)
	v.SetDefault("pipeline.draft_temperature", 0.7)
	v.SetDefault("worker.queues", []string{"scraper_queue", "ai_queue"})
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := oneOf("queue.provider", c.Queue.Provider, "memory", "redis", "pubsub"); err != nil {
		return err
	}
	if c.Queue.Provider == "pubsub" && c.Queue.PubSub.ProjectID == "" {
		return fmt.Errorf("queue.pubsub.project_id must be set for the pubsub queue")
	}
	if err := oneOf("events.provider", c.Events.Provider, "memory", "redis", "pubsub"); err != nil {
		return err
	}
	if c.Events.Provider == "pubsub" && c.Events.ProjectID == "" {
		return fmt.Errorf("events.project_id must be set for pubsub events")
	}
	if err := oneOf("lock.provider", c.Lock.Provider, "memory", "redis"); err != nil {
		return err
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be > 0")
	}
	if err := oneOf("store.provider", c.Store.Provider, "memory", "postgres"); err != nil {
		return err
	}
	if c.Store.Provider == "postgres" && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("store.postgres.dsn must be set for the postgres store")
	}
	if err := oneOf("fetcher.mode", c.Fetcher.Mode, "headless", "static", "auto"); err != nil {
		return err
	}
	if c.Fetcher.SettleMax < c.Fetcher.SettleMin {
		return fmt.Errorf("fetcher.settle_max must be >= fetcher.settle_min")
	}
	if c.Fetcher.NavigationTimeout <= 0 {
		return fmt.Errorf("fetcher.navigation_timeout must be > 0")
	}
	if err := oneOf("llm.provider", c.LLM.Provider, "gemini", "openrouter"); err != nil {
		return err
	}
	if c.Pipeline.FilterBatchMax <= 0 {
		return fmt.Errorf("pipeline.filter_batch_max must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	for _, q := range c.Worker.Queues {
		if err := oneOf("worker.queues", q, "scraper_queue", "ai_queue"); err != nil {
			return err
		}
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if err := oneOf("archive.provider", c.Archive.Provider, "none", "memory", "local", "gcs"); err != nil {
		return err
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set for the gcs archive")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir must be set for the local archive")
	}
	return nil
}

// UsesRedis reports whether any backend needs the Redis client.
func (c Config) UsesRedis() bool {
	return c.Queue.Provider == "redis" || c.Events.Provider == "redis" || c.Lock.Provider == "redis"
}

// InProcessOnly reports whether the configured backends only work within one process.
func (c Config) InProcessOnly() bool {
	return c.Queue.Provider == "memory" || c.Events.Provider == "memory" || c.Lock.Provider == "memory"
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
