package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

// ErrStoreUnavailable is returned when a backend cannot be reached or fails
// an I/O call.
var ErrStoreUnavailable = errors.New("checkpoint store unavailable")

// Store is a durable key to sequence token mapping. Values are returned
// exactly as they were set.
type Store interface {
	// Get returns the token stored under key. ok is false when the key was
	// never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendRedis    Backend = "redis"
	BackendDynamoDB Backend = "dynamodb"
	BackendNull     Backend = "null"
	BackendBadger   Backend = "badger"
	BackendEtcd     Backend = "etcd"
)

// Config holds the settings of every backend; only the selected one is read.
type Config struct {
	Backend  Backend
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	Badger   BadgerConfig
	Etcd     EtcdConfig
}

// New builds the store selected by cfg.Backend. Backends that provision
// resources (dynamodb) do so before New returns.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	logger.Info().Str("sequence_store", string(cfg.Backend)).Msg("getting sequence store")

	switch cfg.Backend {
	case BackendRedis:
		return NewRedis(cfg.Redis, logger)
	case BackendDynamoDB:
		return NewDynamoDB(ctx, cfg.DynamoDB, logger)
	case BackendNull:
		return NewNull(), nil
	case BackendBadger:
		return NewBadger(cfg.Badger, logger)
	case BackendEtcd:
		return NewEtcd(cfg.Etcd, logger)
	default:
		return nil, stream.Errorf(stream.KindConfig, "checkpoint", "unknown sequence store %q", cfg.Backend)
	}
}

func unavailable(op string, err error) error {
	return &stream.Error{Kind: stream.KindConnection, Op: op, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
}
