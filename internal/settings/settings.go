// Package settings loads the process configuration from a config file and
// COUCH_STREAM_ environment variables.
package settings

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/tarungka/couchstream/checkpoint"
	"github.com/tarungka/couchstream/internal/backoff"
	"github.com/tarungka/couchstream/internal/logger"
	"github.com/tarungka/couchstream/pipeline"
	"github.com/tarungka/couchstream/sinks"
	"github.com/tarungka/couchstream/sources"
	"github.com/tarungka/couchstream/stream"
)

const (
	EnvPrefix         = "COUCH_STREAM_"
	DefaultConfigFile = "config.toml"

	defaultOperationTimeout = 30 * time.Second
)

type Settings struct {
	SourceURL       string `koanf:"source_url"`
	SourceDatabase  string `koanf:"source_database"`
	CouchDBUsername string `koanf:"couchdb_username"`
	CouchDBPassword string `koanf:"couchdb_password"`

	Destination            string              `koanf:"destination"`
	MongoDBConnectString   string              `koanf:"mongodb_connect_string"`
	MongoDBDatabase        string              `koanf:"mongodb_database"`
	MongoDBCollection      string              `koanf:"mongodb_collection"`
	MongoDBCollectionField string              `koanf:"mongodb_collection_field"`
	Elasticsearch          sinks.ElasticConfig `koanf:"elasticsearch"`
	Kafka                  sinks.KafkaConfig   `koanf:"kafka"`

	SequenceStoreKey string                    `koanf:"sequence_store_key"`
	SequenceStore    string                    `koanf:"sequence_store"`
	Redis            checkpoint.RedisConfig    `koanf:"redis"`
	DynamoDB         checkpoint.DynamoDBConfig `koanf:"dynamodb"`
	Badger           checkpoint.BadgerConfig   `koanf:"badger"`
	Etcd             checkpoint.EtcdConfig     `koanf:"etcd"`

	Retry            backoff.Policy `koanf:"retry"`
	OperationTimeout time.Duration  `koanf:"operation_timeout"`
	HTTPPort         string         `koanf:"http_port"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

func defaults() Settings {
	return Settings{
		Destination: string(sinks.DestinationMongo),
		DynamoDB: checkpoint.DynamoDBConfig{
			CreateTable: true,
		},
		Retry:            backoff.Policy{}.WithDefaults(),
		OperationTimeout: defaultOperationTimeout,
		LogLevel:         "info",
		LogFormat:        logger.FormatCompact,
	}
}

// Load reads path, when non-empty, then applies environment overrides and
// validates the result. Every returned error is a configuration error.
func Load(path string) (Settings, error) {
	ko := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return Settings{}, stream.Wrap(stream.KindConfig, "load config", err)
		}
		if err := ko.Load(file.Provider(path), parser); err != nil {
			return Settings{}, stream.Wrap(stream.KindConfig, "load config", fmt.Errorf("reading %s: %w", path, err))
		}
	}

	// COUCH_STREAM_REDIS__HOST -> redis.host
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := ko.Load(envProvider, nil); err != nil {
		return Settings{}, stream.Wrap(stream.KindConfig, "load config", fmt.Errorf("reading environment: %w", err))
	}

	s := defaults()
	if err := unmarshal(ko, &s); err != nil {
		return Settings{}, stream.Wrap(stream.KindConfig, "load config", err)
	}

	s.Destination = strings.ToLower(s.Destination)
	s.SequenceStore = strings.ToLower(s.SequenceStore)
	s.LogFormat = strings.ToLower(s.LogFormat)
	s.LogLevel = strings.ToLower(s.LogLevel)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// unmarshal decodes like koanf's default, and also splits comma separated
// strings into list settings, which is how lists arrive from the
// environment (COUCH_STREAM_KAFKA__BROKERS=k1:9092,k2:9092).
func unmarshal(ko *koanf.Koanf, s *Settings) error {
	return ko.UnmarshalWithConf("", s, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           s,
			WeaklyTypedInput: true,
		},
	})
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

func (s Settings) Validate() error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	require("source_url", s.SourceURL)
	require("source_database", s.SourceDatabase)
	require("sequence_store", s.SequenceStore)

	switch sinks.Destination(s.Destination) {
	case sinks.DestinationMongo:
		require("mongodb_connect_string", s.MongoDBConnectString)
		require("mongodb_database", s.MongoDBDatabase)
	case sinks.DestinationElastic:
		if len(s.Elasticsearch.Addresses) == 0 && s.Elasticsearch.CloudID == "" {
			missing = append(missing, "elasticsearch.addresses")
		}
	case sinks.DestinationKafka:
		if len(s.Kafka.Brokers) == 0 {
			missing = append(missing, "kafka.brokers")
		}
	default:
		return stream.Errorf(stream.KindConfig, "validate config", "unknown destination %q", s.Destination)
	}

	switch checkpoint.Backend(s.SequenceStore) {
	case "", checkpoint.BackendNull:
	case checkpoint.BackendRedis:
		require("redis.host", s.Redis.Host)
	case checkpoint.BackendDynamoDB:
		require("dynamodb.table", s.DynamoDB.Table)
	case checkpoint.BackendBadger:
		require("badger.dir", s.Badger.Dir)
	case checkpoint.BackendEtcd:
		if len(s.Etcd.Endpoints) == 0 {
			missing = append(missing, "etcd.endpoints")
		}
	default:
		return stream.Errorf(stream.KindConfig, "validate config", "unknown sequence store %q", s.SequenceStore)
	}

	if len(missing) > 0 {
		return stream.Errorf(stream.KindConfig, "validate config", "missing required settings: %s", strings.Join(missing, ", "))
	}
	if s.StreamKey() == "" {
		return stream.Errorf(stream.KindConfig, "validate config", "no sequence store key can be derived")
	}
	return nil
}

// StreamKey is the checkpoint key: sequence_store_key, else the Mongo
// database name, else the source database name.
func (s Settings) StreamKey() string {
	switch {
	case s.SequenceStoreKey != "":
		return s.SequenceStoreKey
	case s.MongoDBDatabase != "":
		return s.MongoDBDatabase
	default:
		return s.SourceDatabase
	}
}

func (s Settings) Logger() logger.Config {
	return logger.Config{Level: s.LogLevel, Format: s.LogFormat}
}

func (s Settings) Checkpoint() checkpoint.Config {
	return checkpoint.Config{
		Backend:  checkpoint.Backend(s.SequenceStore),
		Redis:    s.Redis,
		DynamoDB: s.DynamoDB,
		Badger:   s.Badger,
		Etcd:     s.Etcd,
	}
}

func (s Settings) Sinks() sinks.Config {
	return sinks.Config{
		Destination: sinks.Destination(s.Destination),
		Mongo: sinks.MongoConfig{
			ConnectString: s.MongoDBConnectString,
			Database:      s.MongoDBDatabase,
		},
		Elastic: s.Elasticsearch,
		Kafka:   s.Kafka,
	}
}

func (s Settings) Couch() sources.CouchConfig {
	return sources.CouchConfig{
		URL:      s.SourceURL,
		Database: s.SourceDatabase,
		Username: s.CouchDBUsername,
		Password: s.CouchDBPassword,
	}
}

func (s Settings) Replicator() pipeline.Config {
	return pipeline.Config{
		StreamKey: s.StreamKey(),
		Route: stream.RouteConfig{
			Collection:      s.MongoDBCollection,
			CollectionField: s.MongoDBCollectionField,
			SourceDatabase:  s.SourceDatabase,
		},
		Retry:            s.Retry,
		OperationTimeout: s.OperationTimeout,
	}
}
