package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "DRILL"

// Definition sources.
const (
	SourceStatic   = "static"
	SourcePostgres = "postgres"
	SourceMongo    = "mongo"
)

type Config struct {
	Env         string      `mapstructure:"env"`
	Server      Server      `mapstructure:"server"`
	Redis       Redis       `mapstructure:"redis"`
	Postgres    Postgres    `mapstructure:"postgres"`
	Mongo       Mongo       `mapstructure:"mongo"`
	Definitions Definitions `mapstructure:"definitions"`
	RabbitMQ    RabbitMQ    `mapstructure:"rabbitmq"`
	Auth        Auth        `mapstructure:"auth"`
	Scheduler   Scheduler   `mapstructure:"scheduler"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

// Redis is optional. An empty Addr keeps cache, locks and counters in process.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type Postgres struct {
	URL string `mapstructure:"url"`
}

type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type Definitions struct {
	Source   string        `mapstructure:"source"`
	TTL      time.Duration `mapstructure:"ttl"`
	Fixtures string        `mapstructure:"fixtures"`
}

type RabbitMQ struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// Auth.JWTSecret empty means development mode: identity comes from the
// X-User-ID/X-User-Role headers.
type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Scheduler struct {
	TimeoutSweep string        `mapstructure:"timeout_sweep"`
	Grace        time.Duration `mapstructure:"grace"`
}

// Load reads the YAML file at path (if it exists) and applies DRILL_*
// environment overrides, e.g. DRILL_REDIS_ADDR for redis.addr.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
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
	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "5s")
	v.SetDefault("postgres.url", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "drills")
	v.SetDefault("definitions.source", SourceStatic)
	v.SetDefault("definitions.ttl", "10m")
	v.SetDefault("definitions.fixtures", "config/drills.yaml")
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "drill.events")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("scheduler.timeout_sweep", "@every 30s")
	v.SetDefault("scheduler.grace", "10s")
}

func (c Config) Validate() error {
	switch c.Definitions.Source {
	case SourceStatic:
	case SourcePostgres:
		if c.Postgres.URL == "" {
			return errors.New("definitions.source=postgres requires postgres.url")
		}
	case SourceMongo:
		if c.Mongo.URI == "" {
			return errors.New("definitions.source=mongo requires mongo.uri")
		}
	default:
		return fmt.Errorf("unknown definitions.source %q", c.Definitions.Source)
	}
	if c.Scheduler.Grace < 0 {
		return errors.New("scheduler.grace must not be negative")
	}
	return nil
}

// Development reports whether the service runs in a local/dev environment.
func (c Config) Development() bool {
	return c.Env == "local" || c.Env == "dev"
}
