package domain

// reconcile.go: re-derivación de votos desde el set completo de marcadores.
//
// La plataforma entrega eventos at-least-once y fuera de orden, y mientras el
// bot está caído no entrega nada. El set de marcadores que devuelve
// FetchVoteMarkers es la única fuente autoritativa; los contadores en vivo
// solo son una vista.

import (
	"sort"
	"time"
)

// Motivos por los que un marcador no cuenta como voto.
const (
	StripUnknownToken = "unknown_token"
	StripDuplicate    = "duplicate"
)

// Marker es un marcador (reacción) de un participante sobre el anuncio.
type Marker struct {
	ParticipantID string
	Token         string // raw, tal como lo entrega la plataforma
	Reason        string // solo en Tally.Stripped
}

// Tally es el resultado determinista de una reconciliación.
type Tally struct {
	PerOption    map[string][]string // optionID → participantes ordenados
	Participants []string            // unión ordenada
	Stripped     []Marker            // marcadores descartados, ordenados
}

// Reconcile aplica retroactivamente la regla de aceptación sobre markers
// (raw token → participantes):
//   - tokens que no corresponden a ninguna opción se descartan;
//   - un participante con marcadores en más de una opción se descarta entero,
//     salvo que ballots registre su primer voto aceptado y ese token siga
//     entre sus marcadores: entonces gana ese voto y el resto se descarta.
//
// Con ballots == nil (al cerrar la apuesta) la regla es estricta.
// Es pura: el mismo input produce siempre el mismo Tally.
func Reconcile(options []Option, markers map[string][]string, ballots map[string]Ballot) Tally {
	byToken := make(map[string]string, len(options))
	for _, o := range options {
		byToken[o.Token] = o.ID
	}

	chosen := make(map[string]map[string]bool) // participante → set de optionIDs
	rawByParticipant := make(map[string][]string)
	var stripped []Marker

	for raw, pids := range markers {
		tok, ok := CanonicalToken(raw)
		optID, known := byToken[tok]
		for _, pid := range pids {
			if pid == "" {
				continue
			}
			if !ok || !known {
				stripped = append(stripped, Marker{ParticipantID: pid, Token: raw, Reason: StripUnknownToken})
				continue
			}
			if chosen[pid] == nil {
				chosen[pid] = make(map[string]bool)
			}
			chosen[pid][optID] = true
			rawByParticipant[pid] = append(rawByParticipant[pid], raw)
		}
	}

	t := Tally{PerOption: make(map[string][]string, len(options))}
	for _, o := range options {
		t.PerOption[o.ID] = []string{}
	}
	for pid, opts := range chosen {
		if len(opts) > 1 {
			kept := ""
			if b, ok := ballots[pid]; ok && opts[byToken[b.Token]] && byToken[b.Token] != "" {
				kept = byToken[b.Token]
				t.PerOption[kept] = append(t.PerOption[kept], pid)
				t.Participants = append(t.Participants, pid)
			}
			for _, raw := range dedupe(rawByParticipant[pid]) {
				if kept != "" {
					if tok, _ := CanonicalToken(raw); byToken[tok] == kept {
						continue
					}
				}
				stripped = append(stripped, Marker{ParticipantID: pid, Token: raw, Reason: StripDuplicate})
			}
			continue
		}
		for optID := range opts {
			t.PerOption[optID] = append(t.PerOption[optID], pid)
		}
		t.Participants = append(t.Participants, pid)
	}

	for id := range t.PerOption {
		sort.Strings(t.PerOption[id])
	}
	sort.Strings(t.Participants)
	if t.Participants == nil {
		t.Participants = []string{}
	}
	sort.Slice(stripped, func(i, j int) bool {
		if stripped[i].ParticipantID != stripped[j].ParticipantID {
			return stripped[i].ParticipantID < stripped[j].ParticipantID
		}
		return stripped[i].Token < stripped[j].Token
	})
	t.Stripped = stripped
	return t
}

// Counts devuelve los votos por opción en el orden dado.
func (t Tally) Counts(options []Option) []int {
	counts := make([]int, len(options))
	for i, o := range options {
		counts[i] = len(t.PerOption[o.ID])
	}
	return counts
}

// Snapshot congela el tally como Locked Snapshot.
func (t Tally) Snapshot(wagerID string, at time.Time) Snapshot {
	per := make(map[string][]string, len(t.PerOption))
	for id, pids := range t.PerOption {
		per[id] = append([]string{}, pids...)
	}
	return Snapshot{
		WagerID:      wagerID,
		PerOption:    per,
		Participants: append([]string{}, t.Participants...),
		CapturedAt:   at.UTC(),
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
