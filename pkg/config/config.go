package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"PriceOpt/pkg/cache"
	"PriceOpt/pkg/clickhouse"
	xhttp "PriceOpt/pkg/http"
	"PriceOpt/pkg/kafka"
	"PriceOpt/pkg/logger"
	"PriceOpt/pkg/queue"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string             `yaml:"environment" default:"development" validate:"oneof=development test staging production"`
	Server      xhttp.ServerConfig `yaml:"server"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Logging     logger.Config      `yaml:"logging"`
	Storage     StorageConfig      `yaml:"storage"`
	Redis       cache.RedisConfig  `yaml:"redis"`
	Cache       cache.LocalConfig  `yaml:"cache"`
	Queue       QueueConfig        `yaml:"queue"`
	Kafka       KafkaConfig        `yaml:"kafka"`
	ClickHouse  ClickHouseConfig   `yaml:"clickhouse"`
	Competitor  CompetitorConfig   `yaml:"competitor"`
	Pricing     PricingConfig      `yaml:"pricing"`
	RateLimit   RateLimitConfig    `yaml:"ratelimit"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// StorageConfig selects where models, catalog and tests live. History goes
// to ClickHouse when it is enabled and to memory otherwise.
type StorageConfig struct {
	Backend           string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	HistoryMaxEntries int    `yaml:"history_max_entries" default:"10000" validate:"gte=0"`
}

// QueueConfig controls the Redis job queue used for asynchronous
// retraining. It needs the redis storage backend.
type QueueConfig struct {
	Enabled bool         `yaml:"enabled"`
	Jobs    queue.Config `yaml:"jobs"`
}

type KafkaConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Brokers  []string             `yaml:"brokers" default:"[\"localhost:9092\"]"`
	Producer kafka.ProducerConfig `yaml:"producer"`
	Consumer kafka.ConsumerConfig `yaml:"consumer"`
	Topics   TopicsConfig         `yaml:"topics"`
}

type TopicsConfig struct {
	Decisions    string `yaml:"decisions" default:"pricing.decisions"`
	Experiments  string `yaml:"experiments" default:"pricing.experiments"`
	Sales        string `yaml:"sales" default:"pricing.sales"`
	Observations string `yaml:"observations" default:"pricing.abtest.observations"`
}

type ClickHouseConfig struct {
	Enabled           bool `yaml:"enabled"`
	clickhouse.Config `yaml:",inline"`
}

type CompetitorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Products       []string      `yaml:"products"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	MaxAge         time.Duration `yaml:"max_age" default:"24h"`
}

type PricingConfig struct {
	Tolerance          float64        `yaml:"tolerance" default:"0.00001" validate:"gt=0"`
	MaxIterations      int            `yaml:"max_iterations" default:"500" validate:"min=1"`
	ABSamples          int            `yaml:"ab_samples" default:"10000" validate:"min=100"`
	DemandDraws        int            `yaml:"demand_draws" default:"1000" validate:"min=10"`
	RefineIterations   int            `yaml:"refine_iterations" default:"30" validate:"min=1,max=200"`
	Seed               uint64         `yaml:"seed"`
	SeedSampleProducts bool           `yaml:"seed_sample_products" default:"true"`
	Fallback           FallbackConfig `yaml:"fallback"`
}

// FallbackConfig is the elasticity used for products without a trained model.
type FallbackConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Coefficient float64 `yaml:"coefficient" default:"-1.8" validate:"lt=0"`
	BaseDemand  float64 `yaml:"base_demand" default:"1200" validate:"gt=0"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	Burst   int     `yaml:"burst" default:"5" validate:"min=1"`
	PerSec  float64 `yaml:"per_sec" default:"2" validate:"gt=0"`
	MaxKeys int     `yaml:"max_keys" default:"10000" validate:"min=1"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment
// variables. An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("ENVIRONMENT", &c.Environment)
	num("HTTP_PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("REDIS_HOST", &c.Redis.Host)
	num("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASSWORD", &c.Redis.Password)
	flag("KAFKA_ENABLED", &c.Kafka.Enabled)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	flag("CLICKHOUSE_ENABLED", &c.ClickHouse.Enabled)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	flag("COMPETITOR_ENABLED", &c.Competitor.Enabled)
	str("COMPETITOR_URL", &c.Competitor.URL)
	list("COMPETITOR_PRODUCTS", &c.Competitor.Products)
	flag("PRICING_FALLBACK_ENABLED", &c.Pricing.Fallback.Enabled)
	if v, ok := lookup("PRICING_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("PRICING_SEED: %w", err))
		} else {
			c.Pricing.Seed = seed
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && c.Storage.Backend != "redis" {
		return fmt.Errorf("queue.enabled requires storage.backend 'redis'")
	}
	if c.Competitor.Enabled {
		if c.Competitor.URL == "" {
			return fmt.Errorf("competitor.url is required when the feed is enabled")
		}
		if len(c.Competitor.Products) == 0 {
			return fmt.Errorf("competitor.products cannot be empty when the feed is enabled")
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got '%s'", c.Logging.Format)
	}
	return nil
}
