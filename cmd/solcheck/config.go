package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"solcheck/internal/checker/sandbox"
	"solcheck/internal/checker/service"
	"solcheck/internal/checker/source"
	"solcheck/internal/common/cache"
	commonmw "solcheck/internal/common/http/middleware"
	"solcheck/internal/common/mq"
	"solcheck/internal/common/storage"
	"solcheck/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath      = "configs/solcheck.yaml"
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodyBytes    = 16 << 20

	apiKeyEnv = "SOLCHECK_API_KEY"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds the accepted API keys. No keys disables the check.
type AuthConfig struct {
	APIKeys []string `yaml:"apiKeys"`
}

// CheckerConfig holds check orchestration settings.
type CheckerConfig struct {
	MaxConcurrentChecks int              `yaml:"maxConcurrentChecks"`
	SlotWait            time.Duration    `yaml:"slotWait"`
	MaxBodyBytes        int64            `yaml:"maxBodyBytes"`
	LintExtensions      []string         `yaml:"lintExtensions"`
	Commands            service.Commands `yaml:"commands"`
	Limits              service.Limits   `yaml:"limits"`
}

// SourceConfig holds settings for source archives in object storage.
type SourceConfig struct {
	MaxArchiveBytes int64 `yaml:"maxArchiveBytes"`
}

// KafkaConfig holds Kafka settings. The consumer runs only when brokers are set.
type KafkaConfig struct {
	mq.KafkaConfig  `yaml:",inline"`
	RequestTopic    string        `yaml:"requestTopic"`
	ResultTopic     string        `yaml:"resultTopic"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	Concurrency     int           `yaml:"concurrency"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	MaxInFlight     int           `yaml:"maxInFlight"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AppConfig holds solcheck config.
type AppConfig struct {
	Server    ServerConfig             `yaml:"server"`
	Logger    logger.Config            `yaml:"logger"`
	Auth      AuthConfig               `yaml:"auth"`
	Checker   CheckerConfig            `yaml:"checker"`
	Sandbox   sandbox.Config           `yaml:"sandbox"`
	Redis     cache.RedisConfig        `yaml:"redis"`
	RateLimit commonmw.RateLimitPolicy `yaml:"rateLimit"`
	MinIO     storage.MinIOConfig      `yaml:"minio"`
	Source    SourceConfig             `yaml:"source"`
	Kafka     KafkaConfig              `yaml:"kafka"`
	Metrics   MetricsConfig            `yaml:"metrics"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path and fills defaults. A missing file is not an
// error when allowMissing is set, so the local commands work without one.
func loadAppConfig(path string, allowMissing bool) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		if !allowMissing || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if keys := os.Getenv(apiKeyEnv); keys != "" {
		cfg.Auth.APIKeys = splitList(keys)
	}
	applyServerDefaults(&cfg.Server)
	applyCheckerDefaults(&cfg.Checker)
	cfg.Sandbox = cfg.Sandbox.WithDefaults()
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
	applyRateLimitDefaults(&cfg.RateLimit)
	if cfg.Source.MaxArchiveBytes <= 0 {
		cfg.Source.MaxArchiveBytes = source.DefaultMaxArchiveBytes
	}
	if err := applyKafkaDefaults(&cfg.Kafka); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = defaultHTTPAddr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
}

func applyCheckerDefaults(cfg *CheckerConfig) {
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = 1
	}
	if cfg.SlotWait == 0 {
		cfg.SlotWait = 2 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	cfg.Commands = cfg.Commands.WithDefaults()
	cfg.Limits = cfg.Limits.WithDefaults()
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}

func applyRateLimitDefaults(cfg *commonmw.RateLimitPolicy) {
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.ClientMax == 0 {
		cfg.ClientMax = 30
	}
	if cfg.RouteMax == 0 {
		cfg.RouteMax = 600
	}
}

func applyKafkaDefaults(cfg *KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	if cfg.RequestTopic == "" {
		cfg.RequestTopic = "solcheck.check.requests"
	}
	if cfg.ResultTopic == "" {
		cfg.ResultTopic = "solcheck.check.results"
	}
	if cfg.RequestTopic == cfg.ResultTopic {
		return fmt.Errorf("kafka request and result topics must differ")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = cfg.Concurrency
	}
	return nil
}
