package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

type RedisConfig struct {
	UseTLS   bool   `koanf:"use_tls"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
	Password string `koanf:"password"`
}

// Redis stores each checkpoint as a plain string key.
type Redis struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// RedisURL renders the connection URL:
//
//	redis[s]://[:password@]host:port/db
func RedisURL(c RedisConfig) string {
	scheme := "redis"
	if c.UseTLS {
		scheme = "rediss"
	}
	auth := ""
	if c.Password != "" {
		auth = fmt.Sprintf(":%s@", c.Password)
	}
	return fmt.Sprintf("%s://%s%s:%d/%d", scheme, auth, c.Host, c.Port, c.DB)
}

func NewRedis(c RedisConfig, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(RedisURL(c))
	if err != nil {
		return nil, stream.Wrap(stream.KindConfig, "redis", err)
	}
	return &Redis{
		client: redis.NewClient(opts),
		prefix: c.Prefix,
		logger: logger.With().Str("service", "redis").Logger(),
	}, nil
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		r.logger.Err(err).Str("key", r.key(key)).Msg("error reading sequence")
		return "", false, unavailable("redis get", err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		r.logger.Err(err).Str("key", r.key(key)).Msg("error writing sequence")
		return unavailable("redis set", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
