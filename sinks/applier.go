package sinks

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

// Applier writes routed changes to the destination store. Both operations
// are idempotent: replaying a change leaves the destination unchanged.
type Applier interface {
	// Delete removes the document with the given id, if present.
	Delete(ctx context.Context, collection, id string) error
	// Upsert replaces the document with the given id, inserting it when
	// absent. created reports an insert.
	Upsert(ctx context.Context, collection, id string, doc map[string]interface{}) (created bool, err error)
	Close(ctx context.Context) error
}

// New connects to the destination selected by cfg.Destination.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Applier, error) {
	logger.Info().Str("destination", string(cfg.Destination)).Msg("connecting to destination")

	switch cfg.Destination {
	case DestinationMongo, "":
		return NewMongoSink(ctx, cfg.Mongo, logger)
	case DestinationElastic:
		return NewElasticSink(cfg.Elastic, logger)
	case DestinationKafka:
		return NewKafkaSink(cfg.Kafka, logger)
	default:
		return nil, stream.Errorf(stream.KindConfig, "destination", "unknown destination %q", cfg.Destination)
	}
}
