package checkpoint

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultEtcdDialTimeout = 5 * time.Second

type EtcdConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	Prefix      string        `koanf:"prefix"`
}

// Etcd stores checkpoints as etcd keys. Reads are linearizable by default.
type Etcd struct {
	kv     clientv3.KV
	closer io.Closer
	prefix string
	logger zerolog.Logger
}

func NewEtcd(c EtcdConfig, logger zerolog.Logger) (*Etcd, error) {
	if len(c.Endpoints) == 0 {
		return nil, stream.Errorf(stream.KindConfig, "etcd", "etcd.endpoints is required")
	}
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultEtcdDialTimeout
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   c.Endpoints,
		DialTimeout: timeout,
		Username:    c.Username,
		Password:    c.Password,
	})
	if err != nil {
		return nil, unavailable("etcd connect", err)
	}
	return newEtcd(cli, cli, c.Prefix, logger), nil
}

func newEtcd(kv clientv3.KV, closer io.Closer, prefix string, logger zerolog.Logger) *Etcd {
	return &Etcd{
		kv:     kv,
		closer: closer,
		prefix: prefix,
		logger: logger.With().Str("service", "etcd").Logger(),
	}
}

func (e *Etcd) key(key string) string {
	if e.prefix == "" {
		return key
	}
	return e.prefix + "/" + key
}

func (e *Etcd) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := e.kv.Get(ctx, e.key(key))
	if err != nil {
		e.logger.Err(err).Str("key", e.key(key)).Msg("error reading sequence")
		return "", false, unavailable("etcd get", err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

func (e *Etcd) Set(ctx context.Context, key, value string) error {
	if _, err := e.kv.Put(ctx, e.key(key), value); err != nil {
		e.logger.Err(err).Str("key", e.key(key)).Msg("error writing sequence")
		return unavailable("etcd set", err)
	}
	return nil
}

func (e *Etcd) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}
