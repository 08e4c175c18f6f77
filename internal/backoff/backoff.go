// Package backoff turns the retry settings into retry-go options so every
// retried call in the process backs off the same way.
package backoff

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 500 * time.Millisecond
	DefaultMaxDelay = 30 * time.Second
)

// Policy bounds how often and how slowly a transient failure is retried.
type Policy struct {
	Attempts uint          `koanf:"attempts"`
	Delay    time.Duration `koanf:"delay"`
	MaxDelay time.Duration `koanf:"max_delay"`
}

// WithDefaults fills unset fields.
func (p Policy) WithDefaults() Policy {
	if p.Attempts == 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Do runs fn until it succeeds, returns a non transient error, the attempts
// run out or ctx is done. Delays grow exponentially with random jitter.
func (p Policy) Do(ctx context.Context, logger zerolog.Logger, op string, fn func() error) error {
	p = p.WithDefaults()
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.Delay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(stream.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Str("op", op).Uint("attempt", n+1).Uint("max_attempts", p.Attempts).Msg("transient failure, retrying")
		}),
	)
}
