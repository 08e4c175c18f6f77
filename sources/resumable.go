package sources

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/internal/backoff"
	"github.com/tarungka/couchstream/stream"
)

// Resumable reconnects a dropped feed from the sequence token of the last
// change it handed out. The replicator processes one change at a time, so
// by the time Next is called again that change has been fully handled.
type Resumable struct {
	feed   Feed
	policy backoff.Policy
	logger zerolog.Logger
}

func NewResumable(feed Feed, policy backoff.Policy, logger zerolog.Logger) *Resumable {
	return &Resumable{
		feed:   feed,
		policy: policy,
		logger: logger.With().Str("service", "feed").Logger(),
	}
}

func (r *Resumable) Open(ctx context.Context, since string) (Changes, error) {
	rc := &resumableChanges{r: r, ctx: ctx, last: since}

	err := r.policy.Do(ctx, r.logger, "open change feed", func() error {
		inner, err := r.feed.Open(ctx, since)
		if err != nil {
			return err
		}
		rc.inner = inner
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

type resumableChanges struct {
	r     *Resumable
	ctx   context.Context
	inner Changes
	last  string
}

func (c *resumableChanges) Next() (stream.ChangeEvent, error) {
	if c.inner == nil {
		return stream.ChangeEvent{}, stream.Errorf(stream.KindConnection, "change feed", "feed is not connected")
	}

	ev, err := c.inner.Next()
	if err == nil {
		c.last = ev.Seq
		return ev, nil
	}
	if c.ctx.Err() != nil || !stream.IsTransient(err) {
		return ev, err
	}

	c.r.logger.Warn().Err(err).Str("since", c.last).Msg("change feed dropped, reconnecting")

	err = c.r.policy.Do(c.ctx, c.r.logger, "reconnect change feed", func() error {
		if c.inner != nil {
			_ = c.inner.Close()
			c.inner = nil
		}
		inner, err := c.r.feed.Open(c.ctx, c.last)
		if err != nil {
			return err
		}
		c.inner = inner

		ev, err = inner.Next()
		return err
	})
	if err != nil {
		if c.ctx.Err() == nil && stream.IsTransient(err) {
			c.r.logger.Error().Err(err).Str("since", c.last).Msg("giving up on change feed")
		}
		return stream.ChangeEvent{}, err
	}

	c.last = ev.Seq
	return ev, nil
}

func (c *resumableChanges) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
