package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarungka/couchstream/stream"
)

func fastPolicy(attempts uint) Policy {
	return Policy{Attempts: attempts, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{}.WithDefaults()
	assert.Equal(t, uint(DefaultAttempts), p.Attempts)
	assert.Equal(t, DefaultDelay, p.Delay)
	assert.Equal(t, DefaultMaxDelay, p.MaxDelay)

	p = Policy{Attempts: 2, Delay: time.Second, MaxDelay: time.Minute}.WithDefaults()
	assert.Equal(t, uint(2), p.Attempts)
	assert.Equal(t, time.Second, p.Delay)
}

func TestPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), zerolog.Nop(), "test", func() error {
		calls++
		if calls < 3 {
			return &stream.Error{Kind: stream.KindConnection, Err: errors.New("reset")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), zerolog.Nop(), "test", func() error {
		calls++
		return &stream.Error{Kind: stream.KindConnection, Err: errors.New("reset")}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, stream.IsTransient(err))
}

func TestPolicy_DoesNotRetryFatal(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), zerolog.Nop(), "test", func() error {
		calls++
		return &stream.Error{Kind: stream.KindApply, Err: errors.New("bad document")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, stream.KindApply, stream.KindOf(err))
}
