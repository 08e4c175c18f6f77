package checkpoint

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

type BadgerConfig struct {
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// Badger keeps checkpoints in an embedded key-value store on local disk, for
// single host deployments that still want resumable streams.
type Badger struct {
	db     *badger.DB
	logger zerolog.Logger
}

func NewBadger(c BadgerConfig, logger zerolog.Logger) (*Badger, error) {
	logger = logger.With().Str("service", "badger").Logger()

	opts := badger.DefaultOptions(c.Dir).WithSyncWrites(true)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if c.Dir == "" {
		return nil, stream.Errorf(stream.KindConfig, "badger", "badger.dir is required")
	}
	opts = opts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, unavailable("badger open", err)
	}
	logger.Debug().Str("dir", c.Dir).Bool("in_memory", c.InMemory).Msg("opened sequence database")

	return &Badger{db: db, logger: logger}, nil
}

func (b *Badger) Get(_ context.Context, key string) (string, bool, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		b.logger.Err(err).Str("key", key).Msg("error reading sequence")
		return "", false, unavailable("badger get", err)
	}
	return string(val), true, nil
}

func (b *Badger) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		b.logger.Err(err).Str("key", key).Msg("error writing sequence")
		return unavailable("badger set", err)
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Trace().Msgf(f, v...) }
