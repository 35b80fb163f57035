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

// errores internos de Update: abortan el compare-and-swap sin escribir.
var (
	errClosed      = errors.New("closed")
	errUnchanged   = errors.New("unchanged")
	errAlreadyHeld = fmt.Errorf("already voted: %w", domain.ErrConflict)
	errNotHeld     = errors.New("not held")
)

// Normalizer acepta o rechaza los eventos de voto crudos de la plataforma.
//
// Regla de aceptación de un cast, en este orden:
//  1. la apuesta no está OPEN (o el deadline pasó) → rechazo
//  2. el token no corresponde a ninguna opción → rechazo
//  3. el participante ya tiene otro voto aceptado → rechazo (gana el primero)
//
// Todo rechazo pide a la plataforma que retire el marcador (best-effort).
// Los eventos son at-least-once: repetir un cast aceptado es un no-op.
type Normalizer struct {
	reg      *Registry
	archive  ports.ArchiveStore
	platform ports.Platform
	notifier ports.Notifier
	now      func() time.Time
}

// NewNormalizer crea el normalizador. archive y notifier pueden ser nil.
func NewNormalizer(reg *Registry, archive ports.ArchiveStore, platform ports.Platform, notifier ports.Notifier, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		reg:      reg,
		archive:  archive,
		platform: platform,
		notifier: notifier,
		now:      now,
	}
}

// Subscribe registra el normalizador en la fuente de eventos.
func (n *Normalizer) Subscribe(src ports.EventSource) {
	src.OnVoteCast(func(ctx context.Context, ev domain.VoteEvent) {
		d, err := n.HandleCast(ctx, ev)
		if err != nil {
			slog.Error("vote cast failed", "wager_id", ev.WagerID, "participant", ev.ParticipantID, "err", err)
			return
		}
		slog.Debug("vote cast", "wager_id", ev.WagerID, "participant", ev.ParticipantID,
			"token", ev.RawToken, "accepted", d.Accepted, "reason", d.Reason)
	})
	src.OnVoteRetract(func(ctx context.Context, ev domain.VoteEvent) {
		d, err := n.HandleRetract(ctx, ev)
		if err != nil {
			slog.Error("vote retract failed", "wager_id", ev.WagerID, "participant", ev.ParticipantID, "err", err)
			return
		}
		slog.Debug("vote retract", "wager_id", ev.WagerID, "participant", ev.ParticipantID,
			"token", ev.RawToken, "reason", d.Reason)
	})
}

// HandleCast procesa un evento de voto.
// Los rechazos no son errores: se devuelven en la Decision.
func (n *Normalizer) HandleCast(ctx context.Context, ev domain.VoteEvent) (domain.Decision, error) {
	w, err := n.reg.Get(ctx, ev.WagerID)
	if errors.Is(err, domain.ErrNotFound) {
		if n.isArchived(ctx, ev.WagerID) {
			// SETTLED: el anuncio sigue visible pero ya no admite marcadores.
			n.expelArchived(ctx, ev)
			return domain.Decision{Reason: domain.ReasonClosed}, nil
		}
		return domain.Decision{Reason: domain.ReasonUnknownWager}, nil
	}
	if err != nil {
		return domain.Decision{}, fmt.Errorf("wager.HandleCast: %w", err)
	}

	now := n.now()
	if !w.AcceptsVotes(now) {
		n.expel(ctx, w, ev, domain.ReasonClosed)
		return domain.Decision{Reason: domain.ReasonClosed}, nil
	}

	opt, ok := w.OptionByToken(ev.RawToken)
	if !ok {
		n.expel(ctx, w, ev, domain.ReasonUnknownToken)
		return domain.Decision{Reason: domain.ReasonUnknownToken}, nil
	}

	castAt := ev.At
	if castAt.IsZero() {
		castAt = now
	}

	_, err = n.reg.Update(ctx, w.ID, func(cur *domain.Wager) error {
		if !cur.AcceptsVotes(now) {
			return errClosed
		}
		if b, held := cur.Ballots[ev.ParticipantID]; held {
			if b.Token == opt.Token {
				return errUnchanged
			}
			return errAlreadyHeld
		}
		cur.Ballots[ev.ParticipantID] = domain.Ballot{Token: opt.Token, CastAt: castAt.UTC()}
		cur.Recount()
		return nil
	})

	switch {
	case err == nil:
		return domain.Decision{Accepted: true, Reason: domain.ReasonAccepted}, nil
	case errors.Is(err, errUnchanged):
		return domain.Decision{Accepted: true, Reason: domain.ReasonDuplicate}, nil
	case errors.Is(err, errAlreadyHeld):
		n.expel(ctx, w, ev, domain.ReasonAlreadyVoted)
		return domain.Decision{Reason: domain.ReasonAlreadyVoted}, nil
	case errors.Is(err, errClosed):
		n.expel(ctx, w, ev, domain.ReasonClosed)
		return domain.Decision{Reason: domain.ReasonClosed}, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.Decision{Reason: domain.ReasonUnknownWager}, nil
	}
	return domain.Decision{}, fmt.Errorf("wager.HandleCast: %w", err)
}

// HandleRetract procesa la retirada de un marcador. Solo muta mientras la
// apuesta está OPEN; después avisa al participante de que su voto está congelado.
func (n *Normalizer) HandleRetract(ctx context.Context, ev domain.VoteEvent) (domain.Decision, error) {
	w, err := n.reg.Get(ctx, ev.WagerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Decision{Reason: domain.ReasonUnknownWager}, nil
	}
	if err != nil {
		return domain.Decision{}, fmt.Errorf("wager.HandleRetract: %w", err)
	}

	tok, _ := domain.CanonicalToken(ev.RawToken)
	b, held := w.Ballots[ev.ParticipantID]

	if !w.AcceptsVotes(n.now()) {
		if held && b.Token == tok {
			n.notify(ctx, ev.ParticipantID, domain.Notice{
				Kind:     domain.NoticeVoteFrozen,
				WagerID:  w.ID,
				Question: w.Question,
			})
			return domain.Decision{Reason: domain.ReasonFrozen}, nil
		}
		// retirada de un marcador que nunca contó (p.ej. el que quitamos nosotros)
		return domain.Decision{Reason: domain.ReasonNotHeld}, nil
	}

	now := n.now()
	_, err = n.reg.Update(ctx, w.ID, func(cur *domain.Wager) error {
		if !cur.AcceptsVotes(now) {
			return errClosed
		}
		cb, ok := cur.Ballots[ev.ParticipantID]
		if !ok || cb.Token != tok {
			return errNotHeld
		}
		delete(cur.Ballots, ev.ParticipantID)
		cur.Recount()
		return nil
	})

	switch {
	case err == nil:
		return domain.Decision{Reason: domain.ReasonRetracted}, nil
	case errors.Is(err, errNotHeld), errors.Is(err, domain.ErrNotFound):
		return domain.Decision{Reason: domain.ReasonNotHeld}, nil
	case errors.Is(err, errClosed):
		// el deadline venció entre lectura y escritura: el voto queda congelado
		return domain.Decision{Reason: domain.ReasonFrozen}, nil
	}
	return domain.Decision{}, fmt.Errorf("wager.HandleRetract: %w", err)
}

// Resync re-deriva los votos de una apuesta OPEN desde el set completo de
// marcadores de la plataforma: corrige lo que se perdió mientras el bot estaba
// caído. Los marcadores inválidos se retiran (best-effort).
func (n *Normalizer) Resync(ctx context.Context, id string) (domain.Wager, error) {
	w, err := n.reg.Get(ctx, id)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager.Resync: %w", err)
	}
	// pasado el deadline el lock reconcilia contra la plataforma
	if w.State != domain.StateOpen || !n.now().Before(w.Deadline) {
		return w, nil
	}

	markers, err := n.platform.FetchVoteMarkers(ctx, w.Venue, w.ID)
	if err != nil {
		return w, fmt.Errorf("wager.Resync %s: %w", id, err)
	}

	now := n.now()
	var tally domain.Tally
	updated, err := n.reg.Update(ctx, id, func(cur *domain.Wager) error {
		if cur.State != domain.StateOpen || !now.Before(cur.Deadline) {
			return errClosed
		}
		tally = domain.Reconcile(cur.Options, markers, cur.Ballots)
		cur.ApplyTally(tally.PerOption, now)
		return nil
	})
	if errors.Is(err, errClosed) {
		return updated, nil
	}
	if err != nil {
		return w, fmt.Errorf("wager.Resync %s: %w", id, err)
	}

	for _, m := range tally.Stripped {
		n.removeMarker(ctx, updated, m.ParticipantID, m.Token, m.Reason)
	}
	slog.Info("wager resynced",
		"wager_id", id,
		"participants", len(tally.Participants),
		"stripped", len(tally.Stripped),
	)
	return updated, nil
}

// ResyncOpen ejecuta Resync sobre todas las apuestas OPEN. Un fallo en una
// apuesta no detiene el resto.
func (n *Normalizer) ResyncOpen(ctx context.Context) error {
	open, err := n.reg.List(ctx, true)
	if err != nil {
		return fmt.Errorf("wager.ResyncOpen: %w", err)
	}
	for _, w := range open {
		if _, err := n.Resync(ctx, w.ID); err != nil {
			slog.Warn("resync failed, will reconcile at lock", "wager_id", w.ID, "err", err)
		}
	}
	return nil
}

// --- helpers internos ---

func (n *Normalizer) expel(ctx context.Context, w domain.Wager, ev domain.VoteEvent, reason string) {
	n.removeMarker(ctx, w, ev.ParticipantID, ev.RawToken, reason)
}

func (n *Normalizer) expelArchived(ctx context.Context, ev domain.VoteEvent) {
	rec, err := n.archive.GetSettled(ctx, ev.WagerID)
	if err != nil {
		return
	}
	n.removeMarker(ctx, rec.Wager, ev.ParticipantID, ev.RawToken, domain.ReasonClosed)
}

func (n *Normalizer) removeMarker(ctx context.Context, w domain.Wager, participantID, rawToken, reason string) {
	if n.platform == nil {
		return
	}
	if err := n.platform.RemoveVoteMarker(ctx, w.Venue, w.ID, participantID, rawToken); err != nil {
		slog.Warn("remove vote marker failed",
			"wager_id", w.ID,
			"participant", participantID,
			"token", rawToken,
			"reason", reason,
			"err", err,
		)
	}
}

func (n *Normalizer) isArchived(ctx context.Context, id string) bool {
	if n.archive == nil {
		return false
	}
	_, err := n.archive.GetSettled(ctx, id)
	return err == nil
}

func (n *Normalizer) notify(ctx context.Context, participantID string, notice domain.Notice) {
	if n.notifier == nil {
		return
	}
	if err := n.notifier.Notify(ctx, participantID, notice); err != nil {
		slog.Warn("notify participant failed", "participant", participantID, "kind", notice.Kind, "err", err)
	}
}
