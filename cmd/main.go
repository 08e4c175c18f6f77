package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"github.com/tarungka/couchstream/internal/logger"
	"github.com/tarungka/couchstream/internal/settings"
)

var buildString = "unknown"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// used until the configured logger exists
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	opts, err := initFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Err(err).Msg("error loading flags")
		return 2
	}

	if opts.version {
		fmt.Println(buildString)
		return 0
	}

	cfg, err := settings.Load(opts.configFile())
	if err != nil {
		log.Err(err).Str("config", opts.configPath).Msg("Error when loading the config")
		return 1
	}

	l, err := logger.New(cfg.Logger())
	if err != nil {
		log.Err(err).Msg("Error when initializing the logger")
		return 1
	}
	l.Info().Str("build", buildString).Str("stream_key", cfg.StreamKey()).Msg("Starting couchstream")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runReplication(ctx, cfg, l); err != nil {
		return 1
	}
	return 0
}
