// Package config loads engage settings from an optional YAML file, .env files
// and ENGAGE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/engage/internal/cache"
	"github.com/roach88/engage/internal/reaction"
)

// EnvPrefix is prepended to every environment override, e.g.
// ENGAGE_STORE_DRIVER or ENGAGE_HTTP_JWT_SECRET.
const EnvPrefix = "ENGAGE"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Counter drivers.
const (
	CounterStore = "store"
	CounterRedis = "redis"
)

// Config is the full engage configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Counter   CounterConfig   `mapstructure:"counter"`
	Redis     cache.Config    `mapstructure:"redis"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Heal      HealConfig      `mapstructure:"heal"`
	Reactions ReactionsConfig `mapstructure:"reactions"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// CounterConfig selects the aggregate counter backend and its write policy.
type CounterConfig struct {
	Driver       string        `mapstructure:"driver"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// HealConfig configures the background healer.
type HealConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ReactionsConfig lists the accepted reaction kinds.
type ReactionsConfig struct {
	Kinds []reaction.Reaction `mapstructure:"kinds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "engage.db")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "engage")

	v.SetDefault("counter.driver", CounterStore)
	v.SetDefault("counter.max_retries", 5)
	v.SetDefault("counter.retry_backoff", 20*time.Millisecond)
	v.SetDefault("counter.write_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", cache.DefaultKeyPrefix)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.request_timeout", 10*time.Second)

	v.SetDefault("heal.interval", 30*time.Second)

	kinds := make([]map[string]any, 0, len(reaction.DefaultKinds))
	for _, k := range reaction.DefaultKinds {
		kinds = append(kinds, map[string]any{"kind": string(k.Kind), "label": k.Label})
	}
	v.SetDefault("reactions.kinds", kinds)
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment apply. envFiles default to ".env"; a missing
// default .env is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Validate checks driver names and required fields.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want %s or %s)", c.Store.Driver, DriverSQLite, DriverMongo)
	}

	switch c.Counter.Driver {
	case CounterStore:
	case CounterRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis counter")
		}
	default:
		return fmt.Errorf("unknown counter.driver %q (want %s or %s)", c.Counter.Driver, CounterStore, CounterRedis)
	}

	if c.Counter.MaxRetries < 1 {
		return fmt.Errorf("counter.max_retries must be at least 1")
	}
	if c.Heal.Interval <= 0 {
		return fmt.Errorf("heal.interval must be positive")
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("reactions.kinds: %w", err)
	}
	return nil
}

// Catalog builds the reaction catalog from reactions.kinds.
func (c *Config) Catalog() (*reaction.Catalog, error) {
	return reaction.NewCatalog(c.Reactions.Kinds)
}
