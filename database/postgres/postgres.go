package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Configs struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenedConnections int `mapstructure:"max_opened_connections"`

	ApplicationName string `mapstructure:"application_name"`

	ConnectionMaxIdleTime time.Duration `mapstructure:"connection_max_idle_time"`
	ConnectionMaxLifeTime time.Duration `mapstructure:"connection_max_life_time"`
	HealthCheckPeriod     time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
}

func (c Configs) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

type Connection struct {
	pool *pgxpool.Pool
}

func NewPostgresConnection(ctx context.Context, config Configs) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(config.dsn())
	if err != nil {
		return nil, fmt.Errorf("parse pgxpool config: %w", err)
	}

	// блокировки - короткие запросы, большой пул не нужен
	if config.MaxOpenedConnections > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenedConnections)
		poolConfig.MinConns = poolConfig.MaxConns / 4
	}
	if config.ConnectionMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnectionMaxIdleTime
	}
	if config.ConnectionMaxLifeTime > 0 {
		poolConfig.MaxConnLifetime = config.ConnectionMaxLifeTime
	}
	if config.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = config.HealthCheckPeriod
	}
	// чтобы новые коннекты не висели вечно в момент глитчей
	if config.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}
	if config.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = config.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
		Msg:       "Postgres pool created",
		Component: "PostgresConnection",
		Method:    "NewPostgresConnection",
		Args:      config.Host + ":" + config.Port + "/" + config.Database,
	})

	return &Connection{pool: pool}, nil
}

func (r *Connection) Stop() {
	r.pool.Close()
}

func (r *Connection) GetPool() *pgxpool.Pool {
	return r.pool
}

func (r *Connection) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
