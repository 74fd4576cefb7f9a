// Package config loads process configuration from the environment, an
// optional config file and .env files.
//
// Precedence, highest first: environment variables, the config file,
// defaults. Keys are the lower-case environment names, so DATABASE_URL
// is database_url in a YAML config file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// Config holds every setting the binaries read.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`
	DBMinConns  int32  `mapstructure:"db_min_conns"`

	// ModelPath has no default; scoring fails with a configuration error while it is unset.
	ModelPath        string  `mapstructure:"model_path"`
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	ReviewThreshold  float64 `mapstructure:"review_threshold"`

	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	OTLPEndpoint   string `mapstructure:"otel_exporter_otlp_endpoint"`

	AWSRegion      string `mapstructure:"aws_region"`
	AWSEndpointURL string `mapstructure:"aws_endpoint_url"`
	SNSTopicARN    string `mapstructure:"sns_topic_arn"`
	SQSQueueURL    string `mapstructure:"sqs_queue_url"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", 25)
	v.SetDefault("db_min_conns", 5)

	v.SetDefault("model_path", "")
	v.SetDefault("default_threshold", entity.DefaultThreshold)
	v.SetDefault("review_threshold", entity.DefaultReviewThreshold)

	v.SetDefault("http_addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("service_name", "fraud-scoring")
	v.SetDefault("service_version", "dev")
	v.SetDefault("environment", "development")
	v.SetDefault("otel_exporter_otlp_endpoint", "")

	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("aws_endpoint_url", "")
	v.SetDefault("sns_topic_arn", "")
	v.SetDefault("sqs_queue_url", "")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", 5*time.Minute)
}

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads configuration. configFile is optional; when set it must exist.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %w", entity.ErrConfiguration, configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", entity.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. It does not require optional collaborators.
func (c *Config) Validate() error {
	var errs []error
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		errs = append(errs, fmt.Errorf("default_threshold must be in [0, 1], got %v", c.DefaultThreshold))
	}
	if c.ReviewThreshold < 0 || c.ReviewThreshold > 1 {
		errs = append(errs, fmt.Errorf("review_threshold must be in [0, 1], got %v", c.ReviewThreshold))
	}
	if c.DBMaxConns < 1 {
		errs = append(errs, fmt.Errorf("db_max_conns must be positive, got %d", c.DBMaxConns))
	}
	if c.DBMinConns < 0 {
		errs = append(errs, fmt.Errorf("db_min_conns must not be negative, got %d", c.DBMinConns))
	}
	if c.RedisDB < 0 || c.RedisDB > 15 {
		errs = append(errs, fmt.Errorf("redis_db must be between 0 and 15, got %d", c.RedisDB))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must not be negative, got %v", c.CacheTTL))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", entity.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// RequireDatabase returns an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", entity.ErrConfiguration)
	}
	return nil
}
