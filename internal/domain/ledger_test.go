package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDelta_ClampsAtZero(t *testing.T) {
	assert.Equal(t, 6, ApplyDelta(0, 6))
	assert.Equal(t, 0, ApplyDelta(0, -2))
	assert.Equal(t, 1, ApplyDelta(3, -2))
	assert.Equal(t, 0, ApplyDelta(1, -5))
}

func TestApplyDelta_NeverNegative(t *testing.T) {
	for pre := 0; pre <= 20; pre++ {
		for delta := -25; delta <= 25; delta++ {
			want := pre + delta
			if want < 0 {
				want = 0
			}
			got := ApplyDelta(pre, delta)
			assert.Equal(t, want, got, "pre=%d delta=%d", pre, delta)
			assert.GreaterOrEqual(t, got, 0)
		}
	}
}
