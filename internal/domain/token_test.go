package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalToken(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"🔵", "🔵", true},
		{"  🔴 ", "🔴", true},
		{"\u2764\uFE0F", "\u2764", true},
		{"<:shark:12345>", "shark:12345", true},
		{"<a:party:999>", "party:999", true},
		{"shark:12345", "shark:12345", true},
		{"", "", false},
		{"   ", "", false},
		{"two words", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalToken(tc.raw)
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestCanonicalToken_VariationSelectorMatchesBare(t *testing.T) {
	a, _ := CanonicalToken("\u2764\uFE0F")
	b, _ := CanonicalToken("\u2764")
	assert.Equal(t, a, b)
}
