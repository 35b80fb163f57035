package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// SchedulerConfig controla el sweep periódico de deadlines.
type SchedulerConfig struct {
	Interval     time.Duration // cada cuánto se revisan los deadlines
	WagerTimeout time.Duration // tope por apuesta para las llamadas a la plataforma
	LeaseKey     string
	LeaseTTL     time.Duration
	Once         bool // un solo sweep y salir
}

// DefaultSchedulerConfig devuelve una configuración sensata para producción.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     5 * time.Second,
		WagerTimeout: 10 * time.Second,
		LeaseKey:     "wagerbot:scheduler",
		LeaseTTL:     30 * time.Second,
	}
}

// Scheduler congela las apuestas cuyo deadline venció.
//
// No hay timers durables: cada tick consulta el índice del Registry, y cada
// apuesta vencida se reconcilia contra la plataforma, se captura su Locked
// Snapshot y pasa a LOCKED. Cualquier fallo deja la apuesta OPEN para el
// siguiente tick.
type Scheduler struct {
	cfg       SchedulerConfig
	reg       *Registry
	snapshots ports.SnapshotStore
	platform  ports.Platform
	presenter ports.Presenter
	odds      domain.OddsCalculator
	lease     ports.Lease
	now       func() time.Time
}

// NewScheduler crea el scheduler. presenter y lease pueden ser nil.
func NewScheduler(
	cfg SchedulerConfig,
	reg *Registry,
	snapshots ports.SnapshotStore,
	platform ports.Platform,
	presenter ports.Presenter,
	odds domain.OddsCalculator,
	lease ports.Lease,
	now func() time.Time,
) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		cfg:       cfg,
		reg:       reg,
		snapshots: snapshots,
		platform:  platform,
		presenter: presenter,
		odds:      odds,
		lease:     lease,
		now:       now,
	}
}

// Run ejecuta el sweep hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta un sweep.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("lock scheduler starting",
		"interval", s.cfg.Interval,
		"wager_timeout", s.cfg.WagerTimeout,
		"once", s.cfg.Once,
	)

	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("lock sweep failed", "err", err)
		if s.cfg.Once {
			return err
		}
	}
	if s.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("lock scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("lock sweep failed", "err", err)
			}
		}
	}
}

// Sweep procesa un tick: bloquea, una por una, las apuestas vencidas.
// Devuelve cuántas pasaron a LOCKED en este tick.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	if s.lease != nil {
		release, err := s.lease.Acquire(ctx, s.cfg.LeaseKey, s.leaseTTL())
		if errors.Is(err, domain.ErrLockHeld) {
			slog.Debug("scheduler lease held elsewhere, skipping tick")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("wager.Sweep: lease: %w", err)
		}
		defer release()
	}

	start := s.now()
	due := s.reg.Due(start)
	if len(due) == 0 {
		return 0, nil
	}

	locked := 0
	for _, id := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.lockWithTimeout(ctx, id)
		if err != nil {
			slog.Warn("lock deferred to next tick", "wager_id", id, "err", err)
			continue
		}
		if ok {
			locked++
		}
	}

	slog.Info("lock sweep complete",
		"due", len(due),
		"locked", locked,
		"duration", s.now().Sub(start).Round(time.Millisecond),
	)
	return locked, nil
}

// LockNow fuerza el lock de una apuesta OPEN aunque su deadline no haya
// vencido (override del operador). Idempotente: si ya está LOCKED la devuelve.
func (s *Scheduler) LockNow(ctx context.Context, id string) (domain.Wager, error) {
	if _, err := s.lock(ctx, id, true); err != nil {
		return domain.Wager{}, err
	}
	return s.reg.Get(ctx, id)
}

func (s *Scheduler) lockWithTimeout(ctx context.Context, id string) (bool, error) {
	if s.cfg.WagerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WagerTimeout)
		defer cancel()
	}
	return s.lock(ctx, id, false)
}

// lock captura el snapshot (si no existe) y transiciona OPEN→LOCKED.
// Devuelve true si esta llamada hizo la transición.
func (s *Scheduler) lock(ctx context.Context, id string, force bool) (bool, error) {
	w, err := s.reg.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		s.reg.Forget(id)
		return false, fmt.Errorf("wager.lock %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("wager.lock %s: %w", id, err)
	}
	if w.State != domain.StateOpen {
		s.reg.Forget(id)
		return false, nil
	}

	now := s.now()
	if !force && now.Before(w.Deadline) {
		return false, nil
	}

	snap, stripped, err := s.captureSnapshot(ctx, w, now)
	if err != nil {
		return false, err
	}

	locked, err := s.reg.Transition(ctx, id, domain.StateLocked, func(next *domain.Wager) {
		at := now.UTC()
		next.LockedAt = &at
		next.ApplyTally(snap.PerOption, now)
	})
	if errors.Is(err, domain.ErrStaleState) {
		return false, s.afterStale(ctx, id, err)
	}
	if err != nil {
		return false, fmt.Errorf("wager.lock %s: %w", id, err)
	}

	for _, m := range stripped {
		if err := s.platform.RemoveVoteMarker(ctx, w.Venue, w.ID, m.ParticipantID, m.Token); err != nil {
			slog.Warn("remove stripped marker failed",
				"wager_id", id, "participant", m.ParticipantID, "reason", m.Reason, "err", err)
		}
	}
	s.refreshAnnouncement(ctx, locked)

	slog.Info("wager locked",
		"wager_id", id,
		"participants", len(snap.Participants),
		"stripped", len(stripped),
		"forced", force,
	)
	return true, nil
}

// afterStale decide qué hacer cuando la transición a LOCKED perdió el CAS.
// Solo se saca del índice si otro tick (u otro proceso) ya la bloqueó; si
// sigue OPEN se reintenta en el próximo tick.
func (s *Scheduler) afterStale(ctx context.Context, id string, cause error) error {
	w, err := s.reg.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		s.reg.Forget(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("wager.lock %s: reread after stale: %w", id, err)
	}
	if w.State != domain.StateOpen {
		s.reg.Forget(id)
		return nil
	}
	return fmt.Errorf("wager.lock %s: still open: %w", id, cause)
}

// captureSnapshot devuelve el snapshot vigente o lo crea reconciliando contra
// la plataforma. Un snapshot existente nunca se reemplaza.
func (s *Scheduler) captureSnapshot(ctx context.Context, w domain.Wager, now time.Time) (domain.Snapshot, []domain.Marker, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, w.ID)
	if err == nil {
		slog.Debug("snapshot already captured, reusing", "wager_id", w.ID)
		return snap, nil, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Snapshot{}, nil, fmt.Errorf("wager.lock %s: read snapshot: %w", w.ID, err)
	}

	markers, err := s.platform.FetchVoteMarkers(ctx, w.Venue, w.ID)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("wager.lock %s: fetch markers: %w", w.ID, err)
	}

	tally := domain.Reconcile(w.Options, markers, nil)
	snap, created, err := s.snapshots.PutSnapshotIfAbsent(ctx, tally.Snapshot(w.ID, now))
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("wager.lock %s: %w", w.ID, err)
	}
	if !created {
		return snap, nil, nil
	}
	return snap, tally.Stripped, nil
}

func (s *Scheduler) refreshAnnouncement(ctx context.Context, w domain.Wager) {
	if s.presenter == nil {
		return
	}
	ann := s.presenter.WagerAnnouncement(w, s.odds.DisplayMultipliers(w.Counts()))
	if err := s.platform.EditAnnouncement(ctx, w.Venue, w.ID, ann); err != nil {
		slog.Warn("edit announcement failed", "wager_id", w.ID, "err", err)
	}
}

func (s *Scheduler) leaseTTL() time.Duration {
	if s.cfg.LeaseTTL > 0 {
		return s.cfg.LeaseTTL
	}
	return DefaultSchedulerConfig().LeaseTTL
}
