package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// State es el estado del ciclo de vida de una apuesta.
// Solo avanza: OPEN → LOCKED → SETTLED.
type State string

const (
	StateOpen    State = "OPEN"
	StateLocked  State = "LOCKED"
	StateSettled State = "SETTLED"
)

// CanTransition devuelve true solo para OPEN→LOCKED y LOCKED→SETTLED.
func (s State) CanTransition(to State) bool {
	switch s {
	case StateOpen:
		return to == StateLocked
	case StateLocked:
		return to == StateSettled
	}
	return false
}

// Option es una de las salidas mutuamente excluyentes de la apuesta.
type Option struct {
	ID       string `json:"id"`    // ordinal 1-based ("1", "2", ...)
	Label    string `json:"label"`
	Token    string `json:"token"` // canónico, ver CanonicalToken
	Votes    int    `json:"votes"` // derivado de Ballots o del snapshot, nunca se incrementa
	IsWinner bool   `json:"is_winner"`
}

// OptionSpec es una opción propuesta antes de crear la apuesta.
type OptionSpec struct {
	Label string
	Token string
}

// Ballot es el voto aceptado de un participante mientras la apuesta está abierta.
type Ballot struct {
	Token  string    `json:"token"`
	CastAt time.Time `json:"cast_at"`
}

// Wager es una pregunta con opciones y deadline de votación.
// El ID lo asigna la plataforma (id del anuncio).
type Wager struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Options   []Option          `json:"options"`
	Deadline  time.Time         `json:"deadline"`
	State     State             `json:"state"`
	CreatedBy string            `json:"created_by"`
	CreatedAt time.Time         `json:"created_at"`
	Venue     string            `json:"venue"`
	LockedAt  *time.Time        `json:"locked_at,omitempty"`
	SettledAt *time.Time        `json:"settled_at,omitempty"`
	Ballots   map[string]Ballot `json:"ballots"`
	Version   int64             `json:"version"`
}

// Proposal es lo que un actor autorizado pide crear.
type Proposal struct {
	Question  string
	Options   []OptionSpec
	Deadline  time.Time
	CreatedBy string
	Venue     string
}

// Validate comprueba la propuesta contra el instante now.
func (p Proposal) Validate(now time.Time) error {
	if strings.TrimSpace(p.Question) == "" {
		return Invalid("question", "must not be empty")
	}
	if len(p.Options) < 2 {
		return Invalid("options", "at least two options are required")
	}
	seen := make(map[string]bool, len(p.Options))
	for i, o := range p.Options {
		if strings.TrimSpace(o.Label) == "" {
			return Invalid("options", "option "+strconv.Itoa(i+1)+" has no label")
		}
		tok, ok := CanonicalToken(o.Token)
		if !ok {
			return Invalid("options", "option "+strconv.Itoa(i+1)+" has no usable vote token")
		}
		if seen[tok] {
			return Invalid("options", "vote token "+tok+" is used twice")
		}
		seen[tok] = true
	}
	if p.Deadline.IsZero() || !p.Deadline.After(now) {
		return Invalid("deadline", "must be in the future")
	}
	return nil
}

// NewWager construye la apuesta OPEN a partir de una propuesta ya validada
// y el id del anuncio publicado.
func NewWager(id string, p Proposal, now time.Time) Wager {
	opts := make([]Option, len(p.Options))
	for i, o := range p.Options {
		tok, _ := CanonicalToken(o.Token)
		opts[i] = Option{
			ID:    strconv.Itoa(i + 1),
			Label: strings.TrimSpace(o.Label),
			Token: tok,
		}
	}
	return Wager{
		ID:        id,
		Question:  strings.TrimSpace(p.Question),
		Options:   opts,
		Deadline:  p.Deadline.UTC(),
		State:     StateOpen,
		CreatedBy: p.CreatedBy,
		CreatedAt: now.UTC(),
		Venue:     p.Venue,
		Ballots:   make(map[string]Ballot),
	}
}

// AcceptsVotes devuelve true si la apuesta está OPEN y el deadline no pasó.
func (w Wager) AcceptsVotes(now time.Time) bool {
	return w.State == StateOpen && now.Before(w.Deadline)
}

// OptionByToken busca la opción cuyo token canónico coincide con raw.
func (w Wager) OptionByToken(raw string) (Option, bool) {
	tok, ok := CanonicalToken(raw)
	if !ok {
		return Option{}, false
	}
	for _, o := range w.Options {
		if o.Token == tok {
			return o, true
		}
	}
	return Option{}, false
}

// OptionByID busca una opción por su ID.
func (w Wager) OptionByID(id string) (Option, bool) {
	for _, o := range w.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionIndex devuelve la posición de la opción o -1.
func (w Wager) OptionIndex(id string) int {
	for i, o := range w.Options {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// Counts devuelve los votos por opción en el orden de Options.
func (w Wager) Counts() []int {
	counts := make([]int, len(w.Options))
	for i, o := range w.Options {
		counts[i] = o.Votes
	}
	return counts
}

// TotalVotes suma los votos de todas las opciones.
func (w Wager) TotalVotes() int {
	total := 0
	for _, o := range w.Options {
		total += o.Votes
	}
	return total
}

// Recount re-deriva los contadores desde Ballots.
func (w *Wager) Recount() {
	byToken := make(map[string]int, len(w.Options))
	for _, b := range w.Ballots {
		byToken[b.Token]++
	}
	for i := range w.Options {
		w.Options[i].Votes = byToken[w.Options[i].Token]
	}
}

// ApplyTally fija contadores y ballots a partir de un reparto por opción
// (snapshot o reconciliación). Conserva CastAt de los ballots que no cambian.
func (w *Wager) ApplyTally(perOption map[string][]string, at time.Time) {
	ballots := make(map[string]Ballot)
	for i := range w.Options {
		o := &w.Options[i]
		voters := perOption[o.ID]
		o.Votes = len(voters)
		for _, pid := range voters {
			if prev, ok := w.Ballots[pid]; ok && prev.Token == o.Token {
				ballots[pid] = prev
				continue
			}
			ballots[pid] = Ballot{Token: o.Token, CastAt: at.UTC()}
		}
	}
	w.Ballots = ballots
}

// MarkWinner marca IsWinner en la opción ganadora y lo limpia en el resto.
func (w *Wager) MarkWinner(optionID string) {
	for i := range w.Options {
		w.Options[i].IsWinner = w.Options[i].ID == optionID
	}
}

// Participants devuelve los ids con ballot aceptado, ordenados.
func (w Wager) Participants() []string {
	ids := make([]string, 0, len(w.Ballots))
	for pid := range w.Ballots {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	return ids
}

// Clone devuelve una copia profunda.
func (w Wager) Clone() Wager {
	c := w
	c.Options = append([]Option(nil), w.Options...)
	c.Ballots = make(map[string]Ballot, len(w.Ballots))
	for k, v := range w.Ballots {
		c.Ballots[k] = v
	}
	if w.LockedAt != nil {
		t := *w.LockedAt
		c.LockedAt = &t
	}
	if w.SettledAt != nil {
		t := *w.SettledAt
		c.SettledAt = &t
	}
	return c
}

// ParseOptionSpec interpreta "Label token" (el token es el último campo),
// p.ej. "Vice Underdogs 🦈".
func ParseOptionSpec(s string) (OptionSpec, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return OptionSpec{}, Invalid("options", "expected \"label token\", got "+strconv.Quote(strings.TrimSpace(s)))
	}
	return OptionSpec{
		Label: strings.Join(fields[:len(fields)-1], " "),
		Token: fields[len(fields)-1],
	}, nil
}
