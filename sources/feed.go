package sources

import (
	"context"

	"github.com/tarungka/couchstream/stream"
)

// Feed opens an ordered change feed on the source database.
type Feed interface {
	// Open starts streaming changes strictly after since. An empty since
	// lets the source pick its own starting point. The returned Changes
	// stays bound to ctx.
	Open(ctx context.Context, since string) (Changes, error)
}

// Changes iterates over an open feed. Next blocks until the next change is
// available.
type Changes interface {
	Next() (stream.ChangeEvent, error)
	Close() error
}

// ErrFeedEnded is returned by Next when the source closed a feed that was
// expected to run forever.
var ErrFeedEnded = &stream.Error{Kind: stream.KindFeedEnded, Op: "change feed"}
