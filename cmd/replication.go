package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/checkpoint"
	"github.com/tarungka/couchstream/internal/settings"
	"github.com/tarungka/couchstream/pipeline"
	"github.com/tarungka/couchstream/server"
	"github.com/tarungka/couchstream/sinks"
	"github.com/tarungka/couchstream/sources"
)

const closeTimeout = 10 * time.Second

// runReplication connects every collaborator and runs the replicator until
// ctx is cancelled or replication halts. Errors are logged before returning.
func runReplication(ctx context.Context, cfg settings.Settings, logger zerolog.Logger) error {
	store, err := checkpoint.New(ctx, cfg.Checkpoint(), logger)
	if err != nil {
		logger.Err(err).Msg("Error when connecting to the sequence store")
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Err(err).Msg("Error when closing the sequence store")
		}
	}()

	couch, err := sources.NewCouchFeed(cfg.Couch(), logger)
	if err != nil {
		logger.Err(err).Msg("Error when connecting to the source")
		return err
	}
	defer couch.Close()

	applier, err := sinks.New(ctx, cfg.Sinks(), logger)
	if err != nil {
		logger.Err(err).Msg("Error when connecting to the destination")
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := applier.Close(closeCtx); err != nil {
			logger.Err(err).Msg("Error when closing the destination")
		}
	}()

	feed := sources.NewResumable(couch, cfg.Retry, logger)
	replicator := pipeline.NewReplicator(store, feed, applier, cfg.Replicator(), logger)

	if cfg.HTTPPort != "" {
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		go func() {
			if err := server.New(cfg.HTTPPort, replicator, logger).Run(srvCtx); err != nil {
				logger.Err(err).Msg("web server stopped")
			}
		}()
	}

	// Run logs its own fatal errors with the offending change.
	return replicator.Run(ctx)
}
