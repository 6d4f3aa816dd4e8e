package kvstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

const defaultRedisOpTimeout = 5 * time.Second

// RedisStore keeps each key as a plain string value. It deliberately
// uses only GET, SET and DEL, so it behaves like any other object
// store here; SET NX would give a real conditional write, but then
// the lease semantics would differ by backend.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// RedisConfig describes how to reach a Redis server.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, to share a server between uses.
	Prefix  string
	Timeout time.Duration
}

func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisStoreFromClient(client, config.Prefix, config.Timeout)
}

func NewRedisStoreFromClient(client *redis.Client, prefix string, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = defaultRedisOpTimeout
	}
	return &RedisStore{client: client, prefix: prefix, timeout: timeout}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	value, err := s.client.Get(cctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %q from redis", s.prefix+key)
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Set(cctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "writing %q to redis", s.prefix+key)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Del(cctx, s.prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "deleting %q from redis", s.prefix+key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) String() string {
	return "redis://" + s.client.Options().Addr + "/" + s.prefix
}
