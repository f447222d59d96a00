// Package config loads orlink configuration from a JSON file and ORLINK_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the lookup service.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	OpenReview OpenReviewConfig `mapstructure:"openreview"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// OpenReviewConfig controls retrieval against the upstream.
type OpenReviewConfig struct {
	// Strategy selects the retrieval implementation: "api" queries the
	// structured notes endpoints, "browser" drives a headless browser
	// against the rendered search page. Exactly one is instantiated.
	Strategy string `mapstructure:"strategy"`

	WebBase  string   `mapstructure:"web_base"`
	APIBases []string `mapstructure:"api_bases"`

	SearchLimit   int           `mapstructure:"search_limit"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	ForumTimeout  time.Duration `mapstructure:"forum_timeout"`

	LookupTTL   time.Duration `mapstructure:"lookup_ttl"`
	CitationTTL time.Duration `mapstructure:"citation_ttl"`

	// Browser-strategy hydration polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollCeiling  time.Duration `mapstructure:"poll_ceiling"`
}

func (o OpenReviewConfig) Validate() error {
	switch o.Strategy {
	case "api", "browser":
	default:
		return fmt.Errorf("openreview.strategy must be \"api\" or \"browser\", got %q", o.Strategy)
	}
	if strings.TrimSpace(o.WebBase) == "" {
		return fmt.Errorf("openreview.web_base required")
	}
	if o.Strategy == "api" && len(o.APIBases) == 0 {
		return fmt.Errorf("openreview.api_bases required for the api strategy")
	}
	return nil
}

// StorageConfig selects and configures the cache backend.
type StorageConfig struct {
	// Cache is "redis" or "memory".
	Cache string      `mapstructure:"cache"`
	Redis RedisConfig `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Cache {
	case "memory":
		return nil
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("storage.cache must be \"redis\" or \"memory\", got %q", s.Cache)
	}
}

// RedisConfig contains redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// LoadConfig loads config from path, or from the default search locations
// when path is empty. Missing files are fine; defaults and ORLINK_* env
// variables apply either way.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8470")
	viper.SetDefault("openreview.strategy", "api")
	viper.SetDefault("openreview.web_base", "https://openreview.net")
	viper.SetDefault("openreview.api_bases", []string{
		"https://api2.openreview.net",
		"https://api.openreview.net",
		"https://openreview.net",
	})
	viper.SetDefault("openreview.search_limit", 100)
	viper.SetDefault("openreview.rate_limit", 4.0)
	viper.SetDefault("openreview.search_timeout", 24*time.Second)
	viper.SetDefault("openreview.forum_timeout", 20*time.Second)
	viper.SetDefault("openreview.lookup_ttl", 7*24*time.Hour)
	viper.SetDefault("openreview.citation_ttl", 30*24*time.Hour)
	viper.SetDefault("openreview.poll_interval", 250*time.Millisecond)
	viper.SetDefault("openreview.poll_ceiling", 15*time.Second)
	viper.SetDefault("storage.cache", "memory")
	viper.SetDefault("storage.redis.timeout", 5*time.Second)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ORLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.OpenReview.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
