package domain

import (
	"sort"
	"time"
)

// OutcomeStatus indica si el participante acertó.
type OutcomeStatus string

const (
	OutcomeWon  OutcomeStatus = "WON"
	OutcomeLost OutcomeStatus = "LOST"
)

// Fuente del reparto final de votos.
const (
	SourceSnapshot = "snapshot"
	SourceLive     = "live"
)

// Outcome es el resultado de la liquidación para un participante.
type Outcome struct {
	ParticipantID string        `json:"participant_id"`
	Status        OutcomeStatus `json:"status"`
	Delta         int           `json:"delta"`   // delta solicitado (+winner / -loser)
	VoteLabel     string        `json:"vote_label"`
	WinnerLabel   string        `json:"winner_label"`
	Balance       int           `json:"balance"` // saldo resultante tras el clamp
}

// SettledWager es el registro archivado de una apuesta liquidada.
type SettledWager struct {
	SettlementID    string    `json:"settlement_id"`
	Wager           Wager     `json:"wager"`
	WinningOptionID string    `json:"winning_option_id"`
	WinnerDelta     int       `json:"winner_delta"`
	LoserDelta      int       `json:"loser_delta"`
	Source          string    `json:"source"`
	Outcomes        []Outcome `json:"outcomes"`
	SettledAt       time.Time `json:"settled_at"`
}

// SettlementResult es el resumen agregado que devuelve Settle.
type SettlementResult struct {
	WagerID         string
	Question        string
	WinningOptionID string
	WinnerLabel     string
	AlreadySettled  bool
	Source          string
	Outcomes        []Outcome
	SettledAt       time.Time
}

// Winners devuelve cuántos participantes acertaron.
func (r SettlementResult) Winners() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeWon {
			n++
		}
	}
	return n
}

// PlanOutcomes calcula los outcomes y los deltas de ledger para un reparto
// final. Balance queda a 0; se rellena tras el commit.
func PlanOutcomes(w Wager, perOption map[string][]string, winningID string, winnerDelta, loserDelta int) ([]Outcome, map[string]int) {
	winner, _ := w.OptionByID(winningID)
	deltas := make(map[string]int)
	var outcomes []Outcome
	for _, o := range w.Options {
		for _, pid := range perOption[o.ID] {
			out := Outcome{
				ParticipantID: pid,
				VoteLabel:     o.Label,
				WinnerLabel:   winner.Label,
			}
			if o.ID == winningID {
				out.Status = OutcomeWon
				out.Delta = winnerDelta
			} else {
				out.Status = OutcomeLost
				out.Delta = -loserDelta
			}
			deltas[pid] += out.Delta
			outcomes = append(outcomes, out)
		}
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].ParticipantID < outcomes[j].ParticipantID
	})
	return outcomes, deltas
}
