package domain

import "time"

// VoteEvent es un evento de voto (cast o retract) entregado por la plataforma.
// Entrega at-least-once y sin orden garantizado.
type VoteEvent struct {
	ParticipantID string
	RawToken      string
	WagerID       string // id del anuncio
	At            time.Time
}

// Motivos de una Decision.
const (
	ReasonAccepted     = "accepted"
	ReasonDuplicate    = "duplicate"     // mismo voto entregado otra vez
	ReasonClosed       = "closed"        // apuesta no OPEN o deadline vencido
	ReasonUnknownToken = "unknown_token" // el token no es de ninguna opción
	ReasonAlreadyVoted = "already_voted" // tiene otro voto aceptado
	ReasonUnknownWager = "unknown_wager" // el anuncio no es una apuesta activa
	ReasonRetracted    = "retracted"
	ReasonFrozen       = "frozen"   // retract tras el lock: solo aviso
	ReasonNotHeld      = "not_held" // retract de un voto que no estaba aceptado
)

// Decision es la respuesta del normalizador a un evento.
type Decision struct {
	Accepted bool
	Reason   string
}

// Actor es quien emite un comando (operador o participante).
type Actor struct {
	ID    string
	Roles []string
}

// NoticeKind distingue los avisos a participantes.
type NoticeKind string

const (
	NoticeSettled    NoticeKind = "settled"
	NoticeVoteFrozen NoticeKind = "vote_frozen"
)

// Notice es el payload estructurado que se entrega a un participante.
// El formato lo decide el adapter.
type Notice struct {
	Kind     NoticeKind
	WagerID  string
	Question string
	Outcome  *Outcome
}
