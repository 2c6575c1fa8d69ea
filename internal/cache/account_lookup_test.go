package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingLookup struct {
	id    string
	err   error
	calls int
}

func (l *countingLookup) FindIDByEmail(context.Context, string) (string, error) {
	l.calls++
	return l.id, l.err
}

// unreachable points at a closed port so every redis call fails fast.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestLookupFallsBackWhenRedisDown(t *testing.T) {
	client := unreachable()
	t.Cleanup(func() { client.Close() })
	inner := &countingLookup{id: "acc-1"}

	lookup := NewCachedAccountLookup(inner, client, time.Minute, zap.NewNop())
	id, err := lookup.FindIDByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)
	assert.Equal(t, 1, inner.calls)
}

func TestLookupPassesThroughMissAndError(t *testing.T) {
	client := unreachable()
	t.Cleanup(func() { client.Close() })

	miss := &countingLookup{}
	id, err := NewCachedAccountLookup(miss, client, time.Minute, zap.NewNop()).FindIDByEmail(context.Background(), "x@example.com")
	require.NoError(t, err)
	assert.Empty(t, id)

	boom := errors.New("db down")
	_, err = NewCachedAccountLookup(&countingLookup{err: boom}, client, time.Minute, zap.NewNop()).FindIDByEmail(context.Background(), "x@example.com")
	assert.ErrorIs(t, err, boom)
}

func TestPingUnreachable(t *testing.T) {
	client := unreachable()
	t.Cleanup(func() { client.Close() })
	assert.Error(t, Ping(context.Background(), client))
}
