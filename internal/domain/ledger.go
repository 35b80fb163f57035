package domain

// LedgerEntry es el saldo persistente de un participante.
type LedgerEntry struct {
	ParticipantID string `json:"participant_id"`
	Points        int    `json:"points"`
}

// ApplyDelta devuelve max(0, balance+delta). Los saldos nunca son negativos.
func ApplyDelta(balance, delta int) int {
	if next := balance + delta; next > 0 {
		return next
	}
	return 0
}
