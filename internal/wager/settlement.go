package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/google/uuid"
)

// SettleRequest es la declaración de ganador del operador.
type SettleRequest struct {
	WagerID         string
	WinningOptionID string
	WinnerDelta     int // se suma a quienes acertaron
	LoserDelta      int // se resta (con clamp a 0) a quienes fallaron
	Actor           domain.Actor
}

// Settler aplica un ganador declarado: ledger, archivo y avisos.
//
// Hay un único camino: el Locked Snapshot manda; solo si no existe (lock
// degradado) se reconcilia en vivo contra la plataforma.
type Settler struct {
	reg       *Registry
	snapshots ports.SnapshotStore
	archive   ports.ArchiveStore
	commit    ports.SettlementStore
	platform  ports.Platform
	notifier  ports.Notifier
	publisher ports.ResultPublisher
	presenter ports.Presenter
	odds      domain.OddsCalculator
	now       func() time.Time
	newID     func() string
}

// SettlerDeps agrupa los colaboradores del Settler. Notifier, Publisher y
// Presenter son opcionales.
type SettlerDeps struct {
	Registry  *Registry
	Snapshots ports.SnapshotStore
	Archive   ports.ArchiveStore
	Commit    ports.SettlementStore
	Platform  ports.Platform
	Notifier  ports.Notifier
	Publisher ports.ResultPublisher
	Presenter ports.Presenter
	Odds      domain.OddsCalculator
	Now       func() time.Time
}

// NewSettler crea el motor de liquidación.
func NewSettler(d SettlerDeps) *Settler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Settler{
		reg:       d.Registry,
		snapshots: d.Snapshots,
		archive:   d.Archive,
		commit:    d.Commit,
		platform:  d.Platform,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		presenter: d.Presenter,
		odds:      d.Odds,
		now:       now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Settle liquida la apuesta. Una apuesta que ya no está en el registro activo
// se considera liquidada: devuelve AlreadySettled sin tocar el ledger.
func (s *Settler) Settle(ctx context.Context, req SettleRequest) (domain.SettlementResult, error) {
	if req.WinnerDelta < 0 || req.LoserDelta < 0 {
		return domain.SettlementResult{}, domain.Invalid("points", "winner and loser points must be >= 0")
	}

	w, err := s.reg.Get(ctx, req.WagerID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.alreadySettled(ctx, req.WagerID), nil
	}
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("wager.Settle: %w", err)
	}
	if w.State != domain.StateLocked {
		return domain.SettlementResult{}, fmt.Errorf("wager.Settle %s (%s): %w", w.ID, w.State, domain.ErrNotLocked)
	}

	winner, ok := w.OptionByID(req.WinningOptionID)
	if !ok {
		return domain.SettlementResult{}, domain.Invalid("option", fmt.Sprintf("wager %s has no option %q", w.ID, req.WinningOptionID))
	}

	perOption, source, err := s.finalVotes(ctx, w)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	outcomes, deltas := domain.PlanOutcomes(w, perOption, winner.ID, req.WinnerDelta, req.LoserDelta)

	now := s.now().UTC()
	settled := w.Clone()
	settled.State = domain.StateSettled
	settled.SettledAt = &now
	settled.ApplyTally(perOption, now)
	settled.MarkWinner(winner.ID)

	rec := domain.SettledWager{
		SettlementID:    s.newID(),
		Wager:           settled,
		WinningOptionID: winner.ID,
		WinnerDelta:     req.WinnerDelta,
		LoserDelta:      req.LoserDelta,
		Source:          source,
		Outcomes:        outcomes,
		SettledAt:       now,
	}

	balances, err := s.commit.CommitSettlement(ctx, rec, deltas)
	if errors.Is(err, domain.ErrAlreadySettled) {
		return s.alreadySettled(ctx, req.WagerID), nil
	}
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("wager.Settle: %w", err)
	}
	s.reg.Forget(w.ID)

	for i := range outcomes {
		outcomes[i].Balance = balances[outcomes[i].ParticipantID]
	}
	res := domain.SettlementResult{
		WagerID:         w.ID,
		Question:        w.Question,
		WinningOptionID: winner.ID,
		WinnerLabel:     winner.Label,
		Source:          source,
		Outcomes:        outcomes,
		SettledAt:       now,
	}

	slog.Info("wager settled",
		"wager_id", w.ID,
		"winner", winner.Label,
		"participants", len(outcomes),
		"winners", res.Winners(),
		"source", source,
		"actor", req.Actor.ID,
	)

	s.deliver(ctx, settled, res)
	return res, nil
}

// Suggest devuelve la sugerencia de puntos para un ganador, a partir de los
// votos congelados (o los contadores vivos si no hay snapshot).
func (s *Settler) Suggest(ctx context.Context, wagerID, winningOptionID string) (domain.Suggestion, error) {
	w, err := s.reg.Get(ctx, wagerID)
	if err != nil {
		return domain.Suggestion{}, fmt.Errorf("wager.Suggest: %w", err)
	}

	counts := w.Counts()
	if snap, err := s.snapshots.GetSnapshot(ctx, wagerID); err == nil {
		counts = snap.Counts(w.Options)
	}
	total := 0
	for _, c := range counts {
		total += c
	}

	var winner *int
	if idx := w.OptionIndex(winningOptionID); idx >= 0 {
		winner = &idx
	}
	return s.odds.Suggest(counts, total, winner), nil
}

// finalVotes resuelve el reparto final: snapshot primero, reconciliación en
// vivo como fallback degradado.
func (s *Settler) finalVotes(ctx context.Context, w domain.Wager) (map[string][]string, string, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, w.ID)
	if err == nil {
		return snap.PerOption, domain.SourceSnapshot, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, "", fmt.Errorf("wager.Settle %s: read snapshot: %w", w.ID, err)
	}

	slog.Warn("no locked snapshot, reconciling live", "wager_id", w.ID)
	markers, err := s.platform.FetchVoteMarkers(ctx, w.Venue, w.ID)
	if err != nil {
		return nil, "", fmt.Errorf("wager.Settle %s: fetch markers: %w", w.ID, err)
	}
	tally := domain.Reconcile(w.Options, markers, nil)
	return tally.PerOption, domain.SourceLive, nil
}

func (s *Settler) alreadySettled(ctx context.Context, id string) domain.SettlementResult {
	res := domain.SettlementResult{WagerID: id, AlreadySettled: true}
	if s.archive == nil {
		return res
	}
	rec, err := s.archive.GetSettled(ctx, id)
	if err != nil {
		return res
	}
	winner, _ := rec.Wager.OptionByID(rec.WinningOptionID)
	res.Question = rec.Wager.Question
	res.WinningOptionID = rec.WinningOptionID
	res.WinnerLabel = winner.Label
	res.Source = rec.Source
	res.Outcomes = rec.Outcomes
	res.SettledAt = rec.SettledAt
	return res
}

// deliver hace todo lo posterior al commit. Best-effort: los fallos se
// loguean y nunca afectan al ledger ya confirmado.
func (s *Settler) deliver(ctx context.Context, settled domain.Wager, res domain.SettlementResult) {
	if s.notifier != nil {
		for i := range res.Outcomes {
			o := res.Outcomes[i]
			notice := domain.Notice{
				Kind:     domain.NoticeSettled,
				WagerID:  res.WagerID,
				Question: res.Question,
				Outcome:  &o,
			}
			if err := s.notifier.Notify(ctx, o.ParticipantID, notice); err != nil {
				slog.Warn("settlement notice failed", "wager_id", res.WagerID, "participant", o.ParticipantID, "err", err)
			}
		}
	}

	if s.presenter != nil && s.platform != nil {
		ann := s.presenter.WagerAnnouncement(settled, s.odds.DisplayMultipliers(settled.Counts()))
		if err := s.platform.EditAnnouncement(ctx, settled.Venue, settled.ID, ann); err != nil {
			slog.Warn("edit announcement failed", "wager_id", settled.ID, "err", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSettlement(ctx, res); err != nil {
			slog.Warn("publish settlement failed", "wager_id", res.WagerID, "err", err)
		}
	}
}
