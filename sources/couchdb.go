package sources

import (
	"context"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"
	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

const defaultHeartbeat = 10000 // milliseconds

type CouchConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

// CouchFeed reads the continuous _changes feed of one CouchDB database.
type CouchFeed struct {
	client   *kivik.Client
	database string
	logger   zerolog.Logger
}

func NewCouchFeed(c CouchConfig, logger zerolog.Logger) (*CouchFeed, error) {
	var opts []kivik.Option
	if c.Username != "" {
		opts = append(opts, couchdb.BasicAuth(c.Username, c.Password))
	}
	client, err := kivik.New("couch", c.URL, opts...)
	if err != nil {
		return nil, stream.Wrap(stream.KindConfig, "couchdb client", err)
	}
	return &CouchFeed{
		client:   client,
		database: c.Database,
		logger:   logger.With().Str("service", "couchdb").Str("database", c.Database).Logger(),
	}, nil
}

func (f *CouchFeed) Open(ctx context.Context, since string) (Changes, error) {
	db := f.client.DB(f.database)
	if err := db.Err(); err != nil {
		return nil, stream.Wrap(stream.KindConnection, "couchdb open database", err)
	}

	params := map[string]interface{}{
		"feed":         "continuous",
		"include_docs": true,
		"heartbeat":    defaultHeartbeat,
	}
	if since != "" {
		params["since"] = since
	}
	f.logger.Info().Str("since", since).Msg("opening change feed")

	changes := db.Changes(ctx, kivik.Params(params))
	if err := changes.Err(); err != nil {
		return nil, stream.Wrap(stream.KindConnection, "couchdb changes", err)
	}
	return &couchChanges{changes: changes}, nil
}

func (f *CouchFeed) Close() error {
	return f.client.Close()
}

type couchChanges struct {
	changes *kivik.Changes
}

func (c *couchChanges) Next() (stream.ChangeEvent, error) {
	if !c.changes.Next() {
		if err := c.changes.Err(); err != nil {
			return stream.ChangeEvent{}, stream.Wrap(stream.KindConnection, "couchdb changes", err)
		}
		return stream.ChangeEvent{}, ErrFeedEnded
	}

	ev := stream.ChangeEvent{
		ID:      c.changes.ID(),
		Seq:     c.changes.Seq(),
		Deleted: c.changes.Deleted(),
	}

	var doc map[string]interface{}
	if err := c.changes.ScanDoc(&doc); err != nil {
		if ev.Deleted {
			return ev, nil
		}
		return ev, &stream.Error{Kind: stream.KindStructural, Op: "decode document", ID: ev.ID, Seq: ev.Seq,
			Err: fmt.Errorf("scan document: %w", err)}
	}
	ev.Doc = doc
	return ev, nil
}

func (c *couchChanges) Close() error {
	return c.changes.Close()
}
