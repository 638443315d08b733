package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Скрипт для снятия блокировки: удаляем ключ, только если значение совпадает с токеном
var compareAndDeleteScript = redis.NewScript(
	`if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`,
)

type LockerConfig struct {
	Address      string        `mapstructure:"address"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

func NewRedisClient(cfg LockerConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
}

// RedisStore backs the lock protocol with SET NX PX and a Lua
// compare-and-delete script.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(c redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: c,
	}
}

func (s *RedisStore) ConditionalSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl.Truncate(time.Millisecond)).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	reply, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Result()
	if err != nil {
		if err == redis.Nil {
			return false, fmt.Errorf("%w: nil reply", ErrMalformedReply)
		}
		return false, fmt.Errorf("eval: %w", err)
	}

	n, ok := reply.(int64)
	if !ok || (n != 0 && n != 1) {
		return false, fmt.Errorf("%w: %#v", ErrMalformedReply, reply)
	}
	return n == 1, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
