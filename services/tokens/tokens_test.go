package tokensvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/trezcool/schoolsite/tests"
)

func TestRedisDenylist(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	d := NewRedisDenylist(client, "")

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists("revoked-token:jti-1"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("revoked-token:jti-1").Seconds(), 5)

	mr.FastForward(2 * time.Hour)
	revoked, err = d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "forgotten once expired")

	require.NoError(t, d.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("revoked-token:jti-2"))

	assert.Error(t, d.Revoke(ctx, "", time.Now().Add(time.Hour)))

	mr.SetError("boom")
	_, err = d.IsRevoked(ctx, "jti-1")
	assert.Error(t, err)
}

func TestMemoryDenylist(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDenylist()
	now := time.Now()
	d.now = func() time.Time { return now }

	require.NoError(t, d.Revoke(ctx, "a", now.Add(time.Hour)))
	require.NoError(t, d.Revoke(ctx, "b", now.Add(-time.Hour)))

	revoked, _ := d.IsRevoked(ctx, "a")
	assert.True(t, revoked)
	revoked, _ = d.IsRevoked(ctx, "b")
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = d.IsRevoked(ctx, "a")
	assert.False(t, revoked)

	require.NoError(t, d.Revoke(ctx, "c", now.Add(time.Hour)))
	assert.Len(t, d.revoked, 1, "expired ids purged")
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	conf := testutil.Config(t)

	d, closeFn, err := New(ctx, conf)
	require.NoError(t, err)
	assert.IsType(t, &MemoryDenylist{}, d)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	conf.Redis.URL = "redis://" + mr.Addr()
	d, closeFn, err = New(ctx, conf)
	require.NoError(t, err)
	assert.IsType(t, &RedisDenylist{}, d)
	assert.NoError(t, closeFn())

	conf.Redis.URL = "://bad"
	_, _, err = New(ctx, conf)
	assert.Error(t, err)
}
