package wager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/adapters/lease"
	"github.com/alejandrodnm/wagerbot/internal/adapters/memory"
	"github.com/alejandrodnm/wagerbot/internal/adapters/notify"
	"github.com/alejandrodnm/wagerbot/internal/adapters/storage"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/wager"
	"github.com/stretchr/testify/require"
)

const (
	blue = "🔵"
	red  = "🔴"
)

var start = time.Date(2026, 6, 12, 20, 0, 0, 0, time.UTC)

// clock es un reloj manual compartido por todos los componentes del test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctx      context.Context
	db       *storage.SQLiteStorage
	platform *memory.Platform
	lease    *lease.Local
	clock    *clock
	svc      *wager.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := &clock{t: start}
	p := memory.NewPlatform()
	p.Now = clk.Now
	l := lease.NewLocal(clk.Now)

	svc := wager.NewService(wager.Deps{
		Storage:   db,
		Platform:  p,
		Notifier:  p,
		Publisher: p,
		Presenter: notify.NewFormatter(nil),
		Lease:     l,
		Odds:      domain.DefaultOdds(),
		Scheduler: wager.DefaultSchedulerConfig(),
		Now:       clk.Now,
	})
	svc.Normalizer.Subscribe(p)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))

	return &fixture{ctx: ctx, db: db, platform: p, lease: l, clock: clk, svc: svc}
}

// create publica una apuesta 🔵 Blue / 🔴 Red que cierra en d.
func (f *fixture) create(t *testing.T, question string, d time.Duration) domain.Wager {
	t.Helper()
	w, err := f.svc.Create(f.ctx, wager.CreateRequest{
		Question: question,
		Options: []domain.OptionSpec{
			{Label: "Blue", Token: blue},
			{Label: "Red", Token: red},
		},
		Deadline: f.clock.Now().Add(d),
		Venue:    "general",
		Actor:    domain.Actor{ID: "admin"},
	})
	require.NoError(t, err)
	return w
}

func (f *fixture) react(t *testing.T, id, pid, tok string) {
	t.Helper()
	require.NoError(t, f.platform.React(f.ctx, id, pid, tok))
}

func (f *fixture) unreact(t *testing.T, id, pid, tok string) {
	t.Helper()
	require.NoError(t, f.platform.Unreact(f.ctx, id, pid, tok))
}

func (f *fixture) get(t *testing.T, id string) domain.Wager {
	t.Helper()
	w, err := f.svc.Get(f.ctx, id)
	require.NoError(t, err)
	return w
}

// lockAfterDeadline avanza el reloj pasado el deadline y ejecuta un sweep.
func (f *fixture) lockAfterDeadline(t *testing.T, w domain.Wager) domain.Wager {
	t.Helper()
	f.clock.Advance(w.Deadline.Sub(f.clock.Now()) + time.Second)
	_, err := f.svc.Scheduler.Sweep(f.ctx)
	require.NoError(t, err)
	locked := f.get(t, w.ID)
	require.Equal(t, domain.StateLocked, locked.State)
	return locked
}

// newServiceOn simula un reinicio: un servicio nuevo sobre el mismo storage y
// la misma plataforma.
func newServiceOn(t *testing.T, f *fixture) *wager.Service {
	t.Helper()
	svc := wager.NewService(wager.Deps{
		Storage:   f.db,
		Platform:  f.platform,
		Notifier:  f.platform,
		Publisher: f.platform,
		Presenter: notify.NewFormatter(nil),
		Lease:     lease.NewLocal(f.clock.Now),
		Odds:      domain.DefaultOdds(),
		Scheduler: wager.DefaultSchedulerConfig(),
		Now:       f.clock.Now,
	})
	require.NoError(t, svc.Start(f.ctx))
	return svc
}
