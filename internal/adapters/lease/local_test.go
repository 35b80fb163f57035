package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/adapters/lease"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_AcquireRelease(t *testing.T) {
	l := lease.NewLocal(nil)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sched", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "sched", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = l.Acquire(ctx, "other", time.Minute)
	assert.NoError(t, err, "keys are independent")

	release()
	release() // idempotente

	_, err = l.Acquire(ctx, "sched", time.Minute)
	assert.NoError(t, err)
}

func TestLocal_ExpiredLeaseCanBeTaken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := lease.NewLocal(func() time.Time { return now })
	ctx := context.Background()

	staleRelease, err := l.Acquire(ctx, "sched", 10*time.Second)
	require.NoError(t, err)

	now = now.Add(11 * time.Second)
	_, err = l.Acquire(ctx, "sched", 10*time.Second)
	require.NoError(t, err)

	// el holder viejo no puede liberar el lease del nuevo
	staleRelease()
	_, err = l.Acquire(ctx, "sched", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}
