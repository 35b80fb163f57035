package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
)

// maxSwapRetries acota los reintentos de compare-and-swap ante escrituras concurrentes.
const maxSwapRetries = 5

// Registry es el registro de apuestas activas sobre un ports.WagerStore.
//
// Mantiene un índice en memoria de deadlines de las apuestas OPEN para que el
// scheduler no tenga que leer todo el store en cada tick. El índice es una
// caché derivada: se reconstruye con Load y nunca decide nada por sí solo.
type Registry struct {
	store ports.WagerStore

	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewRegistry crea un Registry vacío; llamar Load antes de usar el índice.
func NewRegistry(store ports.WagerStore) *Registry {
	return &Registry{
		store:     store,
		deadlines: make(map[string]time.Time),
	}
}

// Load reconstruye el índice de deadlines desde el store.
func (r *Registry) Load(ctx context.Context) error {
	open, err := r.store.ListWagers(ctx, true)
	if err != nil {
		return fmt.Errorf("wager.Registry.Load: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadlines = make(map[string]time.Time, len(open))
	for _, w := range open {
		r.deadlines[w.ID] = w.Deadline
	}
	slog.Debug("deadline index rebuilt", "open_wagers", len(open))
	return nil
}

// Insert persiste una apuesta nueva y la indexa.
func (r *Registry) Insert(ctx context.Context, w domain.Wager) error {
	if err := r.store.InsertWager(ctx, w); err != nil {
		return fmt.Errorf("wager.Registry.Insert: %w", err)
	}
	r.track(w)
	return nil
}

// Get devuelve la apuesta activa; domain.ErrNotFound si no está.
func (r *Registry) Get(ctx context.Context, id string) (domain.Wager, error) {
	return r.store.GetWager(ctx, id)
}

// List devuelve las apuestas activas. Con openOnly solo las que aceptan votos.
func (r *Registry) List(ctx context.Context, openOnly bool) ([]domain.Wager, error) {
	return r.store.ListWagers(ctx, openOnly)
}

// Transition avanza la apuesta a target. Falla con domain.ErrInvalidTransition
// si target no tiene predecesor válido y con domain.ErrStaleState si el estado
// persistido no es el predecesor. patch puede completar campos (LockedAt, ...).
// Si el CAS pierde contra un writer que solo subió la versión (el estado sigue
// siendo el predecesor) se reintenta sobre la versión nueva.
func (r *Registry) Transition(ctx context.Context, id string, target domain.State, patch func(*domain.Wager)) (domain.Wager, error) {
	from, ok := predecessor(target)
	if !ok {
		return domain.Wager{}, fmt.Errorf("wager.Registry.Transition %s → %s: %w", id, target, domain.ErrInvalidTransition)
	}

	for attempt := 0; attempt < maxSwapRetries; attempt++ {
		cur, err := r.store.GetWager(ctx, id)
		if err != nil {
			return domain.Wager{}, fmt.Errorf("wager.Registry.Transition %s: %w", id, err)
		}
		if cur.State != from {
			if rank(cur.State) < rank(from) {
				// saltar un estado (OPEN → SETTLED) nunca es válido
				return cur, fmt.Errorf("wager.Registry.Transition %s: %s → %s: %w",
					id, cur.State, target, domain.ErrInvalidTransition)
			}
			return cur, fmt.Errorf("wager.Registry.Transition %s: persisted %s, want %s: %w",
				id, cur.State, from, domain.ErrStaleState)
		}

		next := cur.Clone()
		next.State = target
		if patch != nil {
			patch(&next)
		}
		err = r.store.SwapWager(ctx, cur, next)
		if err == nil {
			next.Version = cur.Version + 1
			r.track(next)
			return next, nil
		}
		if !errors.Is(err, domain.ErrStaleState) {
			return cur, fmt.Errorf("wager.Registry.Transition %s: %w", id, err)
		}
		slog.Debug("wager transition lost race, retrying", "wager_id", id, "target", target, "attempt", attempt+1)
	}
	return domain.Wager{}, fmt.Errorf("wager.Registry.Transition %s: %d retries: %w", id, maxSwapRetries, domain.ErrStaleState)
}

// Update aplica fn sobre la versión persistida y la guarda con compare-and-swap,
// reintentando si otro writer se adelantó. fn no puede cambiar el estado.
// Si fn devuelve error, no se escribe nada y ese error se devuelve tal cual.
func (r *Registry) Update(ctx context.Context, id string, fn func(*domain.Wager) error) (domain.Wager, error) {
	for attempt := 0; attempt < maxSwapRetries; attempt++ {
		cur, err := r.store.GetWager(ctx, id)
		if err != nil {
			return domain.Wager{}, fmt.Errorf("wager.Registry.Update %s: %w", id, err)
		}

		next := cur.Clone()
		if err := fn(&next); err != nil {
			return cur, err
		}
		if next.State != cur.State {
			return cur, fmt.Errorf("wager.Registry.Update %s: %w", id, domain.ErrInvalidTransition)
		}

		err = r.store.SwapWager(ctx, cur, next)
		if err == nil {
			next.Version = cur.Version + 1
			return next, nil
		}
		if !errors.Is(err, domain.ErrStaleState) {
			return cur, fmt.Errorf("wager.Registry.Update %s: %w", id, err)
		}
		slog.Debug("wager update lost race, retrying", "wager_id", id, "attempt", attempt+1)
	}
	return domain.Wager{}, fmt.Errorf("wager.Registry.Update %s: %d retries: %w", id, maxSwapRetries, domain.ErrStaleState)
}

// Due devuelve los ids OPEN cuyo deadline ya pasó, del más antiguo al más nuevo.
func (r *Registry) Due(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	type entry struct {
		id       string
		deadline time.Time
	}
	var due []entry
	for id, d := range r.deadlines {
		if !d.After(now) {
			due = append(due, entry{id, d})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].deadline.Equal(due[j].deadline) {
			return due[i].deadline.Before(due[j].deadline)
		}
		return due[i].id < due[j].id
	})

	ids := make([]string, len(due))
	for i, e := range due {
		ids[i] = e.id
	}
	return ids
}

// Forget saca la apuesta del índice (ya no está OPEN o no existe).
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deadlines, id)
}

// Tracked devuelve cuántas apuestas hay en el índice.
func (r *Registry) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deadlines)
}

func (r *Registry) track(w domain.Wager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.State == domain.StateOpen {
		r.deadlines[w.ID] = w.Deadline
		return
	}
	delete(r.deadlines, w.ID)
}

func predecessor(target domain.State) (domain.State, bool) {
	switch target {
	case domain.StateLocked:
		return domain.StateOpen, true
	case domain.StateSettled:
		return domain.StateLocked, true
	}
	return "", false
}

func rank(s domain.State) int {
	switch s {
	case domain.StateOpen:
		return 0
	case domain.StateLocked:
		return 1
	case domain.StateSettled:
		return 2
	}
	return -1
}
