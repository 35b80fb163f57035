package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/adapters/lease"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLease(t *testing.T) (*lease.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := lease.NewRedis(context.Background(), lease.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestRedis_AcquireRelease(t *testing.T) {
	r, mr := newRedisLease(t)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "sched", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lease:sched"))
	assert.Equal(t, time.Minute, mr.TTL("lease:sched"))

	_, err = r.Acquire(ctx, "sched", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = r.Acquire(ctx, "other", time.Minute)
	assert.NoError(t, err, "keys are independent")

	release()
	release() // idempotente
	assert.False(t, mr.Exists("lease:sched"))

	_, err = r.Acquire(ctx, "sched", time.Minute)
	assert.NoError(t, err)
}

func TestRedis_StaleReleaseKeepsNewHolder(t *testing.T) {
	r, mr := newRedisLease(t)
	ctx := context.Background()

	staleRelease, err := r.Acquire(ctx, "sched", 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(11 * time.Second)
	assert.False(t, mr.Exists("lease:sched"), "ttl expired")

	_, err = r.Acquire(ctx, "sched", 10*time.Second)
	require.NoError(t, err)
	holder, err := mr.Get("lease:sched")
	require.NoError(t, err)

	// el unlock compara el token: no borra el lease del nuevo holder
	staleRelease()
	got, err := mr.Get("lease:sched")
	require.NoError(t, err)
	assert.Equal(t, holder, got)

	_, err = r.Acquire(ctx, "sched", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestRedis_ReleaseWithServerDownDoesNotPanic(t *testing.T) {
	r, mr := newRedisLease(t)

	release, err := r.Acquire(context.Background(), "sched", time.Minute)
	require.NoError(t, err)

	mr.Close()
	assert.NotPanics(t, release)
}

func TestNewRedis_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := lease.NewRedis(ctx, lease.RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}
