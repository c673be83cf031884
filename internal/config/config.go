package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	TicketMaster TicketMasterConfig `mapstructure:"ticketmaster"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Recommend    RecommendConfig    `mapstructure:"recommend"`
	Workers      WorkersConfig      `mapstructure:"workers"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	Mode            string `mapstructure:"mode"` // gin mode: debug, release, test
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// TicketMasterConfig holds Discovery API configuration
type TicketMasterConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	APIKey               string `mapstructure:"api_key"`
	Radius               int    `mapstructure:"radius"`
	GeohashPrecision     uint   `mapstructure:"geohash_precision"`
	Timeout              int    `mapstructure:"timeout"`
	MaxRetries           int    `mapstructure:"max_retries"`
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second"`

	// Circuit breaker
	BreakerFailures uint32 `mapstructure:"breaker_failures"`
	BreakerTimeout  int    `mapstructure:"breaker_timeout"`
}

// DatabaseConfig holds database configuration. Driver selects the
// history store backend: "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"` // sqlite only
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// RedisConfig holds Redis connection details. With Enabled false the
// search cache is skipped and searched items are saved synchronously.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
	MaxDeliveries int    `mapstructure:"max_deliveries"` // then the message is dead-lettered
	CacheTTL      int    `mapstructure:"cache_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RecommendConfig struct {
	SearchConcurrency int `mapstructure:"search_concurrency"`
	RequestTimeout    int `mapstructure:"request_timeout"`
}

type WorkersConfig struct {
	Count int `mapstructure:"count"`
}

// Load loads configuration from YAML file with environment variable overrides.
// The file is config.yaml in the current directory unless CONFIG_PATH points elsewhere.
func Load() (*Config, error) {
	v := viper.New()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.TicketMaster.APIKey == "" {
		return fmt.Errorf("ticketmaster.api_key is required")
	}
	if c.Redis.MinIdleTime <= 0 {
		return fmt.Errorf("redis.min_idle_time must be positive, got %d", c.Redis.MinIdleTime)
	}
	if c.Redis.MaxDeliveries <= 0 {
		return fmt.Errorf("redis.max_deliveries must be positive, got %d", c.Redis.MaxDeliveries)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ticketmaster.base_url", "https://app.ticketmaster.com")
	v.SetDefault("ticketmaster.api_key", "")
	v.SetDefault("ticketmaster.radius", 50)
	v.SetDefault("ticketmaster.geohash_precision", 4)
	v.SetDefault("ticketmaster.timeout", 30)
	v.SetDefault("ticketmaster.max_retries", 3)
	v.SetDefault("ticketmaster.max_requests_per_second", 5)
	v.SetDefault("ticketmaster.breaker_failures", 5)
	v.SetDefault("ticketmaster.breaker_timeout", 60)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./recommender.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "recommender")
	v.SetDefault("database.user", "recommender_user")
	v.SetDefault("database.password", "recommender_pass")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "recommender_consumer")
	v.SetDefault("redis.min_idle_time", 120)
	v.SetDefault("redis.max_deliveries", 5)
	v.SetDefault("redis.cache_ttl", 600)

	v.SetDefault("recommend.search_concurrency", 1)
	v.SetDefault("recommend.request_timeout", 30)

	v.SetDefault("workers.count", 4)
}
