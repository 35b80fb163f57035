package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// variationSelector16 acompaña a muchos emojis ("❤️" vs "❤"); no forma parte del voto.
const variationSelector16 = "\uFE0F"

// CanonicalToken normaliza el símbolo con el que se vota.
//
//   - emoji unicode: NFC y sin variation selector
//   - emoji custom de Discord "<:name:id>" o "<a:name:id>": "name:id"
//
// Devuelve false si no queda nada utilizable.
func CanonicalToken(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") && strings.Count(s, ":") >= 2 {
		inner := s[1 : len(s)-1]
		inner = strings.TrimPrefix(inner, "a:")
		inner = strings.TrimPrefix(inner, ":")
		s = inner
	}
	s = strings.ReplaceAll(s, variationSelector16, "")
	s = norm.NFC.String(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", false
	}
	return s, true
}
