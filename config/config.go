package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/PavelAgarkov/warlock/database/postgres"
	"github.com/PavelAgarkov/warlock/locker"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/server"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "warlock"

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Log       logger.Config       `mapstructure:"log"`
	Store     StoreConfig         `mapstructure:"store"`
	Redis     locker.LockerConfig `mapstructure:"redis"`
	Postgres  postgres.Configs    `mapstructure:"postgres"`
	HTTP      HTTPConfig          `mapstructure:"http"`
	GRPC      server.Configs      `mapstructure:"grpc"`
	Lock      LockDefaults        `mapstructure:"lock"`
	Sweep     SweepConfig         `mapstructure:"sweep"`
	Readiness IntervalConfig      `mapstructure:"readiness"`
	Leader    LeaderConfig        `mapstructure:"leader"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type LockDefaults struct {
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Wait        time.Duration `mapstructure:"wait"`
}

type IntervalConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SweepConfig: если Cron задан, очистка идёт по расписанию вместо тикера.
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Cron     string        `mapstructure:"cron"`
}

// LeaderConfig включает выборы лидера, если Name не пустой.
type LeaderConfig struct {
	Name       string        `mapstructure:"name"`
	Expiration time.Duration `mapstructure:"expiration"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.cloud", false)

	v.SetDefault("store.driver", DriverRedis)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 3*time.Second)
	v.SetDefault("redis.read_timeout", time.Second)
	v.SetDefault("redis.write_timeout", time.Second)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.username", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "postgres")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_opened_connections", 8)
	v.SetDefault("postgres.application_name", "warlock")
	v.SetDefault("postgres.connection_max_idle_time", 5*time.Minute)
	v.SetDefault("postgres.connection_max_life_time", time.Hour)
	v.SetDefault("postgres.health_check_period", 15*time.Second)
	v.SetDefault("postgres.connect_timeout", time.Second)

	v.SetDefault("http.port", ":8080")
	v.SetDefault("grpc.port", ":9090")
	v.SetDefault("grpc.network", "tcp")
	v.SetDefault("grpc.reflection", false)

	v.SetDefault("lock.default_ttl", 10*time.Second)
	v.SetDefault("lock.max_attempts", 3)
	v.SetDefault("lock.wait", 100*time.Millisecond)

	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.cron", "")
	v.SetDefault("readiness.interval", 5*time.Second)

	v.SetDefault("leader.name", "")
	v.SetDefault("leader.expiration", 30*time.Second)
}

// Load собирает конфиг: значения по умолчанию, файл (если указан), .env, переменные WARLOCK_*, флаги.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Lock.DefaultTTL < time.Millisecond {
		return fmt.Errorf("config: lock.default_ttl %s is below one millisecond", c.Lock.DefaultTTL)
	}
	if c.Lock.MaxAttempts < 1 {
		return fmt.Errorf("config: lock.max_attempts must be at least 1")
	}
	if c.Lock.Wait < 0 {
		return fmt.Errorf("config: lock.wait must not be negative")
	}
	if c.Readiness.Interval <= 0 || c.Sweep.Interval <= 0 {
		return fmt.Errorf("config: readiness.interval and sweep.interval must be positive")
	}
	return nil
}
