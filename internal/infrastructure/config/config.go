package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all sequencer configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Dynamo    DynamoConfig
	Redis     RedisConfig
	Feed      FeedConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DynamoConfig holds DynamoDB settings. Endpoint and the static credentials
// are only set for local development against DynamoDB Local / LocalStack; in
// a real deployment the default AWS credential chain is used.
type DynamoConfig struct {
	Region    string
	Endpoint  string
	TableName string
	IndexName string
	AccessKey string
	SecretKey string
}

// RedisConfig holds Redis connection settings for the feed checkpoint store
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// FeedConfig holds change-feed polling and redelivery configuration
type FeedConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxDeliveries int
	RetryDelay    time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g. LEDGER_DYNAMO_TABLE_NAME)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Dynamo: DynamoConfig{
			Region:    v.GetString("dynamo.region"),
			Endpoint:  v.GetString("dynamo.endpoint"),
			TableName: v.GetString("dynamo.table_name"),
			IndexName: v.GetString("dynamo.index_name"),
			AccessKey: v.GetString("dynamo.access_key"),
			SecretKey: v.GetString("dynamo.secret_key"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Feed: FeedConfig{
			PollInterval:  v.GetDuration("feed.poll_interval"),
			BatchSize:     v.GetInt("feed.batch_size"),
			MaxDeliveries: v.GetInt("feed.max_deliveries"),
			RetryDelay:    v.GetDuration("feed.retry_delay"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ledger-sequencer"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Dynamo.Region == "" {
		cfg.Dynamo.Region = "eu-west-1"
	}
	if cfg.Dynamo.TableName == "" {
		cfg.Dynamo.TableName = "fintechdemo-workflow-dev"
	}
	if cfg.Dynamo.IndexName == "" {
		cfg.Dynamo.IndexName = "parent-sequence-index"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Feed.PollInterval == 0 {
		cfg.Feed.PollInterval = 5 * time.Second
	}
	if cfg.Feed.BatchSize == 0 {
		cfg.Feed.BatchSize = 100
	}
	if cfg.Feed.MaxDeliveries == 0 {
		cfg.Feed.MaxDeliveries = 5
	}
	if cfg.Feed.RetryDelay == 0 {
		cfg.Feed.RetryDelay = time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Feed.BatchSize <= 0 || c.Feed.BatchSize > 1000 {
		return fmt.Errorf("feed.batch_size must be between 1 and 1000, got %d", c.Feed.BatchSize)
	}
	if c.Feed.MaxDeliveries <= 0 {
		return fmt.Errorf("feed.max_deliveries must be positive, got %d", c.Feed.MaxDeliveries)
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		// Static credentials are a local-development convenience only; real
		// deployments use the default credential chain.
		if c.Dynamo.AccessKey != "" || c.Dynamo.SecretKey != "" {
			return fmt.Errorf("dynamo static credentials must not be set in production")
		}
		if c.Dynamo.Endpoint != "" && !strings.HasPrefix(c.Dynamo.Endpoint, "https://") {
			return fmt.Errorf("dynamo.endpoint must use https in production")
		}
	}
	return nil
}

// Addr returns the Redis address as host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
