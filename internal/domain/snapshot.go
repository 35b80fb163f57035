package domain

import "time"

// Snapshot es el Locked Snapshot: los votos aceptados al cerrar la apuesta.
// Inmutable una vez persistido y autoritativo para la liquidación.
type Snapshot struct {
	WagerID      string              `json:"wager_id"`
	PerOption    map[string][]string `json:"per_option"`
	Participants []string            `json:"participants"`
	CapturedAt   time.Time           `json:"captured_at"`
}

// OptionOf devuelve la opción votada por el participante.
func (s Snapshot) OptionOf(participantID string) (string, bool) {
	for optID, pids := range s.PerOption {
		for _, pid := range pids {
			if pid == participantID {
				return optID, true
			}
		}
	}
	return "", false
}

// Counts devuelve los votos por opción en el orden de options.
func (s Snapshot) Counts(options []Option) []int {
	counts := make([]int, len(options))
	for i, o := range options {
		counts[i] = len(s.PerOption[o.ID])
	}
	return counts
}
