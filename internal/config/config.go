// Package config loads kwdig settings from defaults, an optional config file,
// KWDIG_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// EnvPrefix is prepended to every environment variable, e.g. KWDIG_SERP_DELAY.
const EnvPrefix = "KWDIG"

// Config is the fully merged configuration.
type Config struct {
	Region  string `mapstructure:"region"`
	Depth   int    `mapstructure:"depth" validate:"min=1,max=5"`
	Analyze bool   `mapstructure:"analyze"`

	SuggestURL     string        `mapstructure:"suggest_url" validate:"omitempty,url"`
	SearchURL      string        `mapstructure:"search_url" validate:"omitempty,url"`
	SuggestDelay   time.Duration `mapstructure:"suggest_delay"`
	SerpDelay      time.Duration `mapstructure:"serp_delay"`
	SuggestTimeout time.Duration `mapstructure:"suggest_timeout" validate:"gt=0"`
	SerpTimeout    time.Duration `mapstructure:"serp_timeout" validate:"gt=0"`

	RequestsPerSecond float64  `mapstructure:"requests_per_second" validate:"min=0"`
	Jitter            float64  `mapstructure:"jitter" validate:"min=0,max=1"`
	TLSProfile        string   `mapstructure:"tls_profile" validate:"omitempty,oneof=go chrome firefox safari random"`
	UserAgents        []string `mapstructure:"user_agents"`
	RotateUserAgent   bool     `mapstructure:"rotate_user_agent"`
	ProxiesFile       string   `mapstructure:"proxies_file"`
	RespectRobots     bool     `mapstructure:"respect_robots"`

	Backend string `mapstructure:"backend" validate:"oneof=none csv json sqlite postgres"`
	Output  string `mapstructure:"output"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Backend postgres"`

	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" validate:"required_with=KafkaBrokers"`

	Neo4jURI      string `mapstructure:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password"`

	MetricsPort  int    `mapstructure:"metrics_port" validate:"min=0,max=65535"`
	Listen       string `mapstructure:"listen"`
	EventBuffer  int    `mapstructure:"event_buffer" validate:"min=0"`
	ReportFormat string `mapstructure:"report_format" validate:"oneof=text json yaml html"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment variables to be picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("region", "indonesia")
	v.SetDefault("depth", keyword.DefaultDepth)
	v.SetDefault("analyze", true)

	v.SetDefault("suggest_url", "")
	v.SetDefault("search_url", "")
	v.SetDefault("suggest_delay", 100*time.Millisecond)
	v.SetDefault("serp_delay", 500*time.Millisecond)
	v.SetDefault("suggest_timeout", 5*time.Second)
	v.SetDefault("serp_timeout", 10*time.Second)

	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("jitter", 0.0)
	v.SetDefault("tls_profile", "go")
	v.SetDefault("user_agents", []string{})
	v.SetDefault("rotate_user_agent", false)
	v.SetDefault("proxies_file", "")
	v.SetDefault("respect_robots", false)

	v.SetDefault("backend", "none")
	v.SetDefault("output", "")
	v.SetDefault("dsn", "")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_prefix", "kwdig:job:")
	v.SetDefault("redis_ttl", 24*time.Hour)

	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "kwdig.events")

	v.SetDefault("neo4j_uri", "")
	v.SetDefault("neo4j_user", "neo4j")
	v.SetDefault("neo4j_password", "")

	v.SetDefault("metrics_port", 0)
	v.SetDefault("listen", ":8080")
	v.SetDefault("event_buffer", 256)
	v.SetDefault("report_format", "text")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and returns the
// validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if _, err := keyword.ParseRegion(c.Region); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("'%s' failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Params builds job parameters for seed from the configured defaults.
func (c *Config) Params(seed string) (keyword.Params, error) {
	region, err := keyword.ParseRegion(c.Region)
	if err != nil {
		return keyword.Params{}, err
	}
	p := keyword.Params{
		Seed:               seed,
		Region:             region,
		MaxDepth:           c.Depth,
		AnalyzeCompetition: c.Analyze,
	}.Normalize()
	return p, p.Validate()
}

// NewLogger builds the structured logger described by the config.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
