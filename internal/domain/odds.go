package domain

import "math"

const (
	DefaultBasePoints           = 6
	DefaultFallbackPoints       = 3
	DefaultZeroWinnerMultiplier = 3.0

	// DisplayPlaceholder se usa como multiplicador de una opción sin votos.
	DisplayPlaceholder = 0.0
)

// OddsCalculator calcula la sugerencia pari-mutuel de puntos.
// Es puro: no toca estado.
type OddsCalculator struct {
	BasePoints           int     // K
	FallbackPoints       int     // ambos lados cuando no hay votos o ganador
	ZeroWinnerMultiplier float64 // multiplicador si la opción ganadora no tiene votos
}

// DefaultOdds devuelve la calculadora con las constantes por defecto.
func DefaultOdds() OddsCalculator {
	return OddsCalculator{
		BasePoints:           DefaultBasePoints,
		FallbackPoints:       DefaultFallbackPoints,
		ZeroWinnerMultiplier: DefaultZeroWinnerMultiplier,
	}
}

// Suggestion es la sugerencia de puntos, sobreescribible por el operador.
type Suggestion struct {
	Multiplier   float64
	WinnerPoints int
	LoserPoints  int
	Fallback     bool
}

// Suggest calcula winnerPoints = round(total/winning × K) y
// loserPoints = round(winnerPoints / 3).
//
// winner es el índice de la opción ganadora en counts (nil = sin ganador).
func (c OddsCalculator) Suggest(counts []int, total int, winner *int) Suggestion {
	if total <= 0 || winner == nil || *winner < 0 || *winner >= len(counts) {
		return Suggestion{
			WinnerPoints: c.FallbackPoints,
			LoserPoints:  c.FallbackPoints,
			Fallback:     true,
		}
	}

	multiplier := c.ZeroWinnerMultiplier
	if wv := counts[*winner]; wv > 0 {
		multiplier = float64(total) / float64(wv)
	}
	winnerPts := int(math.Round(multiplier * float64(c.BasePoints)))
	return Suggestion{
		Multiplier:   multiplier,
		WinnerPoints: winnerPts,
		LoserPoints:  int(math.Round(float64(winnerPts) / 3)),
	}
}

// DisplayMultipliers devuelve total/votes_i por opción; solo informativo.
func (c OddsCalculator) DisplayMultipliers(counts []int) []float64 {
	total := 0
	for _, v := range counts {
		total += v
	}
	out := make([]float64, len(counts))
	for i, v := range counts {
		if v <= 0 {
			out[i] = DisplayPlaceholder
			continue
		}
		out[i] = float64(total) / float64(v)
	}
	return out
}
