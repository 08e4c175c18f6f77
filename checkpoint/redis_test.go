package checkpoint

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarungka/couchstream/stream"
)

func TestRedisURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  RedisConfig
		want string
	}{
		{
			name: "no password no tls",
			cfg:  RedisConfig{Host: "localhost", Port: 6379, DB: 0},
			want: "redis://localhost:6379/0",
		},
		{
			name: "password no tls",
			cfg:  RedisConfig{Host: "localhost", Port: 6379, DB: 0, Password: "mypassword"},
			want: "redis://:mypassword@localhost:6379/0",
		},
		{
			name: "no password tls",
			cfg:  RedisConfig{UseTLS: true, Host: "localhost", Port: 6379, DB: 0},
			want: "rediss://localhost:6379/0",
		},
		{
			name: "password tls",
			cfg:  RedisConfig{UseTLS: true, Host: "localhost", Port: 6379, DB: 0, Password: "mypassword"},
			want: "rediss://:mypassword@localhost:6379/0",
		},
		{
			name: "non default db",
			cfg:  RedisConfig{Host: "cache.internal", Port: 6380, DB: 3},
			want: "redis://cache.internal:6380/3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedisURL(tt.cfg))
		})
	}
}

func newTestRedis(t *testing.T, prefix string) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	r, err := NewRedis(RedisConfig{Host: mr.Host(), Port: port, Prefix: prefix}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestRedis_Contract(t *testing.T) {
	r, _ := newTestRedis(t, "")
	testStoreContract(t, r)
}

func TestRedis_Prefix(t *testing.T) {
	r, mr := newTestRedis(t, "couch")
	require.NoError(t, r.Set(context.Background(), "orders", "99-abc"))

	raw, err := mr.Get("couch:orders")
	require.NoError(t, err)
	assert.Equal(t, "99-abc", raw)
	assert.False(t, mr.Exists("orders"))
}

func TestRedis_Unavailable(t *testing.T) {
	r, mr := newTestRedis(t, "")
	mr.Close()

	_, _, err := r.Get(context.Background(), "orders")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, stream.IsTransient(err))
}
