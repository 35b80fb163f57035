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

// CreateRequest es la petición de alta de una apuesta.
type CreateRequest struct {
	Question string
	Options  []domain.OptionSpec
	Deadline time.Time
	Venue    string
	Actor    domain.Actor
}

// Deps agrupa los colaboradores del servicio.
type Deps struct {
	Storage   ports.Storage
	Platform  ports.Platform
	Notifier  ports.Notifier
	Publisher ports.ResultPublisher
	Presenter ports.Presenter
	Lease     ports.Lease
	Odds      domain.OddsCalculator
	Scheduler SchedulerConfig
	Now       func() time.Time
}

// Service es la fachada del motor de apuestas: registro, normalizador,
// scheduler y liquidación sobre el mismo storage.
type Service struct {
	store     ports.Storage
	platform  ports.Platform
	presenter ports.Presenter
	odds      domain.OddsCalculator
	now       func() time.Time

	Registry   *Registry
	Normalizer *Normalizer
	Scheduler  *Scheduler
	Settler    *Settler
}

// NewService cablea los componentes.
func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	reg := NewRegistry(d.Storage)
	return &Service{
		store:      d.Storage,
		platform:   d.Platform,
		presenter:  d.Presenter,
		odds:       d.Odds,
		now:        now,
		Registry:   reg,
		Normalizer: NewNormalizer(reg, d.Storage, d.Platform, d.Notifier, now),
		Scheduler:  NewScheduler(d.Scheduler, reg, d.Storage, d.Platform, d.Presenter, d.Odds, d.Lease, now),
		Settler: NewSettler(SettlerDeps{
			Registry:  reg,
			Snapshots: d.Storage,
			Archive:   d.Storage,
			Commit:    d.Storage,
			Platform:  d.Platform,
			Notifier:  d.Notifier,
			Publisher: d.Publisher,
			Presenter: d.Presenter,
			Odds:      d.Odds,
			Now:       now,
		}),
	}
}

// Start reconstruye el índice de deadlines y re-sincroniza las apuestas OPEN
// con la plataforma (votos perdidos mientras el proceso estaba caído).
func (s *Service) Start(ctx context.Context) error {
	if err := s.Registry.Load(ctx); err != nil {
		return fmt.Errorf("wager.Start: %w", err)
	}
	if err := s.Normalizer.ResyncOpen(ctx); err != nil {
		return fmt.Errorf("wager.Start: %w", err)
	}
	slog.Info("wager service ready", "open_wagers", s.Registry.Tracked())
	return nil
}

// Create valida la propuesta, publica el anuncio y persiste la apuesta OPEN
// con el id del anuncio.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Wager, error) {
	p := domain.Proposal{
		Question:  req.Question,
		Options:   req.Options,
		Deadline:  req.Deadline,
		CreatedBy: req.Actor.ID,
		Venue:     req.Venue,
	}
	now := s.now()
	if err := p.Validate(now); err != nil {
		return domain.Wager{}, err
	}

	draft := domain.NewWager("", p, now)
	ann := s.presenter.WagerAnnouncement(draft, s.odds.DisplayMultipliers(draft.Counts()))
	id, err := s.platform.PostAnnouncement(ctx, req.Venue, ann)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager.Create: post announcement: %w", err)
	}

	w := domain.NewWager(id, p, now)
	if err := s.Registry.Insert(ctx, w); err != nil {
		// el anuncio queda huérfano: sin registro, sus votos se ignoran
		slog.Error("wager announced but not persisted", "wager_id", id, "err", err)
		return domain.Wager{}, fmt.Errorf("wager.Create: %w", err)
	}

	slog.Info("wager created",
		"wager_id", w.ID,
		"question", w.Question,
		"options", len(w.Options),
		"deadline", w.Deadline.Format(time.RFC3339),
		"created_by", w.CreatedBy,
	)
	return w, nil
}

// Get devuelve una apuesta activa.
func (s *Service) Get(ctx context.Context, id string) (domain.Wager, error) {
	return s.Registry.Get(ctx, id)
}

// List devuelve las apuestas activas; con openOnly solo las OPEN.
func (s *Service) List(ctx context.Context, openOnly bool) ([]domain.Wager, error) {
	return s.Registry.List(ctx, openOnly)
}

// LockNow fuerza el lock (override del operador).
func (s *Service) LockNow(ctx context.Context, id string) (domain.Wager, error) {
	return s.Scheduler.LockNow(ctx, id)
}

// Settle liquida una apuesta LOCKED.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (domain.SettlementResult, error) {
	return s.Settler.Settle(ctx, req)
}

// SuggestFor devuelve la sugerencia de puntos para una opción ganadora.
func (s *Service) SuggestFor(ctx context.Context, id, winningOptionID string) (domain.Suggestion, error) {
	return s.Settler.Suggest(ctx, id, winningOptionID)
}

// DisplayOdds devuelve la apuesta con los multiplicadores informativos por
// opción. Para apuestas ya liquidadas usa el archivo.
func (s *Service) DisplayOdds(ctx context.Context, id string) (domain.Wager, []float64, error) {
	w, err := s.Registry.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		rec, aerr := s.store.GetSettled(ctx, id)
		if aerr != nil {
			return domain.Wager{}, nil, fmt.Errorf("wager.DisplayOdds: %w", err)
		}
		w = rec.Wager
	} else if err != nil {
		return domain.Wager{}, nil, fmt.Errorf("wager.DisplayOdds: %w", err)
	}
	return w, s.odds.DisplayMultipliers(w.Counts()), nil
}

// Balance devuelve el saldo de un participante (0 si nunca jugó).
func (s *Service) Balance(ctx context.Context, participantID string) (int, error) {
	return s.store.Balance(ctx, participantID)
}

// Leaderboard devuelve las n entradas con más puntos.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]domain.LedgerEntry, error) {
	return s.store.Top(ctx, n)
}

// Run ejecuta el scheduler hasta que el contexto se cancele.
func (s *Service) Run(ctx context.Context) error {
	return s.Scheduler.Run(ctx)
}
