package sinks

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoSink replicates documents into one MongoDB database, one collection
// per routed collection name.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

func NewMongoSink(ctx context.Context, c MongoConfig, logger zerolog.Logger) (*MongoSink, error) {
	if c.ConnectString == "" || c.Database == "" {
		return nil, stream.Errorf(stream.KindConfig, "mongodb", "mongodb_connect_string and mongodb_database are required")
	}

	logger.Trace().Msg("Connecting to mongodb...")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.ConnectString))
	if err != nil {
		logger.Err(err).Msg("Error when connecting to mongodb database!")
		return nil, stream.Wrap(stream.KindConnection, "mongodb connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, stream.Wrap(stream.KindConnection, "mongodb ping", err)
	}

	m := newMongoSink(client.Database(c.Database), logger)
	m.client = client
	return m, nil
}

func newMongoSink(db *mongo.Database, logger zerolog.Logger) *MongoSink {
	return &MongoSink{
		db:     db,
		logger: logger.With().Str("service", "mongodb").Str("database", db.Name()).Logger(),
	}
}

func (m *MongoSink) Delete(ctx context.Context, collection, id string) error {
	_, err := m.db.Collection(collection).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return mongoError("mongodb delete", err)
	}
	return nil
}

func (m *MongoSink) Upsert(ctx context.Context, collection, id string, doc map[string]interface{}) (bool, error) {
	replacement, err := toBSON(doc)
	if err != nil {
		return false, stream.Wrap(stream.KindStructural, "mongodb convert document", err)
	}

	res, err := m.db.Collection(collection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		replacement,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return false, mongoError("mongodb replace", err)
	}
	return res.UpsertedID != nil, nil
}

func (m *MongoSink) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	m.logger.Info().Msg("Closing MongoDB connection")
	return m.client.Disconnect(ctx)
}

// toBSON converts a decoded JSON document into BSON. Keys are kept as plain
// data, so "$"-prefixed fields are never read as extended JSON type markers.
// Whole numbers land as int64 rather than doubles.
func toBSON(doc map[string]interface{}) (bson.D, error) {
	d, ok := toBSONValue(doc).(bson.D)
	if !ok {
		return nil, fmt.Errorf("document is not an object")
	}
	// the driver rejects a replacement whose first key starts with "$"
	for i, e := range d {
		if e.Key == "_id" && i > 0 {
			d = append(bson.D{e}, append(d[:i:i], d[i+1:]...)...)
			break
		}
	}
	if _, err := bson.Marshal(d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return d, nil
}

func toBSONValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		d := make(bson.D, 0, len(v))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: toBSONValue(v[k])})
		}
		return d
	case []interface{}:
		a := make(bson.A, len(v))
		for i, item := range v {
			a[i] = toBSONValue(item)
		}
		return a
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v)
		}
		return v
	default:
		return v
	}
}

func mongoError(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return stream.Wrap(stream.KindConnection, op, err)
	}
	return stream.Wrap(stream.KindApply, op, err)
}
