package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(i int) *int { return &i }

func TestSuggest_PariMutuel(t *testing.T) {
	// total 4, ganador con 3 votos → round(4/3 × 6) = 8, round(8/3) = 3
	s := DefaultOdds().Suggest([]int{3, 1}, 4, intPtr(0))
	assert.False(t, s.Fallback)
	assert.InDelta(t, 4.0/3.0, s.Multiplier, 1e-9)
	assert.Equal(t, 8, s.WinnerPoints)
	assert.Equal(t, 3, s.LoserPoints)
}

func TestSuggest_Underdog(t *testing.T) {
	// total 4, ganador con 1 voto → 4 × 6 = 24, 24/3 = 8
	s := DefaultOdds().Suggest([]int{3, 1}, 4, intPtr(1))
	assert.Equal(t, 24, s.WinnerPoints)
	assert.Equal(t, 8, s.LoserPoints)
}

func TestSuggest_ZeroTotalFallsBack(t *testing.T) {
	s := DefaultOdds().Suggest([]int{0, 0}, 0, intPtr(0))
	assert.True(t, s.Fallback)
	assert.Equal(t, DefaultFallbackPoints, s.WinnerPoints)
	assert.Equal(t, DefaultFallbackPoints, s.LoserPoints)
}

func TestSuggest_NoWinnerFallsBack(t *testing.T) {
	s := DefaultOdds().Suggest([]int{2, 5}, 7, nil)
	assert.True(t, s.Fallback)
	assert.Equal(t, s.WinnerPoints, s.LoserPoints)
	assert.Equal(t, DefaultFallbackPoints, s.WinnerPoints)
}

func TestSuggest_WinnerWithoutVotes(t *testing.T) {
	// multiplicador fijo 3 → 18 / 6
	s := DefaultOdds().Suggest([]int{4, 0}, 4, intPtr(1))
	assert.InDelta(t, DefaultZeroWinnerMultiplier, s.Multiplier, 1e-9)
	assert.Equal(t, 18, s.WinnerPoints)
	assert.Equal(t, 6, s.LoserPoints)
}

func TestSuggest_CustomConstants(t *testing.T) {
	c := OddsCalculator{BasePoints: 10, FallbackPoints: 1, ZeroWinnerMultiplier: 2}
	s := c.Suggest([]int{1, 1}, 2, intPtr(0))
	assert.Equal(t, 20, s.WinnerPoints)
	assert.Equal(t, 7, s.LoserPoints)

	assert.Equal(t, 1, c.Suggest(nil, 0, nil).WinnerPoints)
}

func TestDisplayMultipliers(t *testing.T) {
	m := DefaultOdds().DisplayMultipliers([]int{3, 1, 0})
	assert.InDelta(t, 4.0/3.0, m[0], 1e-9)
	assert.InDelta(t, 4.0, m[1], 1e-9)
	assert.Equal(t, DisplayPlaceholder, m[2])
}
