package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/checkpoint"
	"github.com/tarungka/couchstream/internal/backoff"
	"github.com/tarungka/couchstream/sinks"
	"github.com/tarungka/couchstream/sources"
	"github.com/tarungka/couchstream/stream"
)

const defaultOperationTimeout = 30 * time.Second

type Config struct {
	// StreamKey names the checkpoint of this stream.
	StreamKey string
	Route     stream.RouteConfig
	Retry     backoff.Policy
	// OperationTimeout bounds every checkpoint and destination call.
	OperationTimeout time.Duration
}

// Replicator drives one change stream from the source feed into the
// destination, one change at a time, checkpointing after every applied
// change.
type Replicator struct {
	store   checkpoint.Store
	feed    sources.Feed
	applier sinks.Applier
	cfg     Config
	logger  zerolog.Logger

	// last token this process saw in the store; used only to detect a
	// second writer, never as the source of truth
	lastKnown    string
	hasLastKnown bool

	stats stats
}

func NewReplicator(store checkpoint.Store, feed sources.Feed, applier sinks.Applier, cfg Config, logger zerolog.Logger) *Replicator {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	cfg.Retry = cfg.Retry.WithDefaults()

	r := &Replicator{
		store:   store,
		feed:    feed,
		applier: applier,
		cfg:     cfg,
		logger:  logger.With().Str("service", "replicator").Str("stream_key", cfg.StreamKey).Logger(),
	}
	r.stats.setState(StateInit)
	return r
}

// Run replicates until the context is cancelled or a fatal condition is
// reached. Cancellation is honoured between changes only and yields a nil
// error; anything else is returned as a *stream.Error.
func (r *Replicator) Run(ctx context.Context) error {
	r.stats.setState(StateInit)

	last, ok, err := r.readCheckpoint(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.stop()
		}
		return r.fatal(err, stream.ChangeEvent{})
	}
	r.lastKnown, r.hasLastKnown = last, ok
	r.stats.setLastSeq(last)

	r.logger.Info().Str("since", last).Bool("resuming", ok).Msg("starting replication")

	changes, err := r.feed.Open(ctx, last)
	if err != nil {
		if ctx.Err() != nil {
			return r.stop()
		}
		return r.fatal(stream.Wrap(stream.KindConnection, "open change feed", err), stream.ChangeEvent{})
	}
	defer changes.Close()

	for {
		if ctx.Err() != nil {
			return r.stop()
		}

		r.stats.setState(StateStreaming)
		ev, err := changes.Next()
		if err != nil {
			if ctx.Err() != nil {
				return r.stop()
			}
			return r.fatal(stream.WithEvent(err, stream.KindConnection, ev), ev)
		}

		if err := r.process(ctx, ev); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				r.logger.Info().Str("id", ev.ID).Str("seq", ev.Seq).Msg("stopped before change was applied, it will be re-delivered")
				return r.stop()
			}
			return r.fatal(err, ev)
		}
	}
}

// process runs one change through verify, route, apply and checkpoint.
// Once the change is applied the checkpoint write runs to completion even if
// ctx is cancelled.
func (r *Replicator) process(ctx context.Context, ev stream.ChangeEvent) error {
	r.stats.received.Add(1)
	r.logger.Debug().Str("id", ev.ID).Str("seq", ev.Seq).Msg("change received")

	r.stats.setState(StateVerifying)
	if err := r.verify(ctx, ev); err != nil {
		return err
	}

	r.stats.setState(StateRouting)
	d, err := stream.Route(ev, r.cfg.Route)
	if err != nil {
		return stream.WithEvent(err, stream.KindStructural, ev)
	}

	if d.Action == stream.ActionSkip {
		r.stats.skipped.Add(1)
		r.logger.Info().Str("id", ev.ID).Str("seq", ev.Seq).Msg("design document")
		return nil
	}

	r.stats.setState(StateApplying)
	if err := r.apply(ctx, ev, d); err != nil {
		return err
	}

	r.stats.setState(StateCheckpointing)
	if err := r.writeCheckpoint(ctx, ev); err != nil {
		return err
	}
	r.lastKnown, r.hasLastKnown = ev.Seq, true
	r.stats.applied.Add(1)
	r.stats.setLastSeq(ev.Seq)
	return nil
}

func (r *Replicator) verify(ctx context.Context, ev stream.ChangeEvent) error {
	current, ok, err := r.readCheckpoint(ctx)
	if err != nil {
		return stream.WithEvent(err, stream.KindConnection, ev)
	}
	if ok != r.hasLastKnown || current != r.lastKnown {
		return &stream.Error{
			Kind: stream.KindConsistency,
			Op:   "verify checkpoint",
			ID:   ev.ID,
			Seq:  ev.Seq,
			Err: fmt.Errorf("sequence mismatch: stored %s != last known %s",
				describeToken(current, ok), describeToken(r.lastKnown, r.hasLastKnown)),
		}
	}
	return nil
}

func (r *Replicator) apply(ctx context.Context, ev stream.ChangeEvent, d stream.Decision) error {
	logger := r.logger.With().Str("id", ev.ID).Str("seq", ev.Seq).Str("collection", d.Collection).Logger()

	var created bool
	switch d.Action {
	case stream.ActionDelete:
		logger.Info().Msg("deleting document")
	case stream.ActionUpsert:
		logger.Info().Msg("replacing document")
	}

	err := r.cfg.Retry.Do(ctx, logger, "apply "+d.Action.String(), func() error {
		opCtx, cancel := r.detached(ctx)
		defer cancel()

		if d.Action == stream.ActionDelete {
			return r.applier.Delete(opCtx, d.Collection, d.Key)
		}
		var err error
		created, err = r.applier.Upsert(opCtx, d.Collection, d.Key, d.Doc)
		return err
	})
	if err != nil {
		return stream.WithEvent(err, stream.KindApply, ev)
	}

	if d.Action == stream.ActionDelete {
		r.stats.deleted.Add(1)
	} else if created {
		r.stats.inserted.Add(1)
		logger.Info().Msg("document inserted")
	}
	return nil
}

// writeCheckpoint is not retried: a failed write leaves the change applied
// but not recorded, and the next run re-applies it.
func (r *Replicator) writeCheckpoint(ctx context.Context, ev stream.ChangeEvent) error {
	opCtx, cancel := r.detached(ctx)
	defer cancel()

	if err := r.store.Set(opCtx, r.cfg.StreamKey, ev.Seq); err != nil {
		return &stream.Error{Kind: stream.KindCheckpoint, Op: "write checkpoint", ID: ev.ID, Seq: ev.Seq, Err: err}
	}
	return nil
}

func (r *Replicator) readCheckpoint(ctx context.Context) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := r.cfg.Retry.Do(ctx, r.logger, "read checkpoint", func() error {
		opCtx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
		defer cancel()

		var err error
		value, ok, err = r.store.Get(opCtx, r.cfg.StreamKey)
		return err
	})
	return value, ok, err
}

// detached returns a context that ignores cancellation of ctx but still
// times out, so an in-flight write is never abandoned halfway.
func (r *Replicator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.OperationTimeout)
}

func (r *Replicator) stop() error {
	r.stats.setState(StateStopped)
	r.logger.Info().Str("last_seq", r.lastKnown).Msg("replication stopped")
	return nil
}

func (r *Replicator) fatal(err error, ev stream.ChangeEvent) error {
	r.stats.setState(StateFatal)
	r.logger.Error().
		Err(err).
		Str("kind", stream.KindOf(err).String()).
		Str("id", ev.ID).
		Str("seq", ev.Seq).
		Str("last_seq", r.lastKnown).
		Msg("replication halted")
	return err
}

func describeToken(v string, ok bool) string {
	if !ok {
		return "<none>"
	}
	return fmt.Sprintf("%q", v)
}
