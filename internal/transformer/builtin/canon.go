package builtin

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonicalizer normalizes business-key text so that loosely matched labels
// from different taxonomies compare equal ("Desempeño 360", "DESEMPENO360 ",
// "📈 desempeño").
//
// Steps, in order: trim, uppercase, strip accents (NFD, drop nonspacing
// marks, NFC), uppercase again, drop symbol/format runes (emoji, joiners),
// drop whitespace, then remove Fillers until none remain.
//
// Canonical is idempotent: Canonical(Canonical(s)) == Canonical(s).
type Canonicalizer struct {
	// Fillers are conventional markers removed from keys (e.g. "360").
	// They are canonicalized with the same steps before matching.
	Fillers []string

	// KeepSpaces skips whitespace removal. Fillers are still removed.
	KeepSpaces bool
}

// Canonical returns the canonical form of s.
func (c Canonicalizer) Canonical(s string) string {
	s = c.base(s)
	if len(c.Fillers) == 0 {
		return s
	}
	fillers := make([]string, 0, len(c.Fillers))
	for _, f := range c.Fillers {
		if f = c.base(f); f != "" {
			fillers = append(fillers, f)
		}
	}
	for {
		before := s
		for _, f := range fillers {
			s = strings.ReplaceAll(s, f, "")
		}
		if s == before {
			break
		}
	}
	if c.KeepSpaces {
		s = strings.Join(strings.Fields(s), " ")
	}
	return s
}

// Key adapts Canonical to cell values for joins and dedupes.
func (c Canonicalizer) Key(v any) string {
	return c.Canonical(cellText(v))
}

func (c Canonicalizer) base(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = FoldAccents(s)
	s = strings.ToUpper(s)
	s = strings.Map(func(r rune) rune {
		if isSymbolRune(r) {
			return -1
		}
		if !c.KeepSpaces && unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if c.KeepSpaces {
		s = strings.Join(strings.Fields(s), " ")
	}
	return s
}

// FoldAccents transliterates accented letters to their base Latin letters
// ("Ñ" -> "N", "é" -> "e").
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isSymbolRune(r rune) bool {
	switch {
	case unicode.Is(unicode.So, r), unicode.Is(unicode.Cs, r), unicode.Is(unicode.Co, r):
		return true
	case unicode.Is(unicode.Cf, r):
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	}
	return false
}

// Simple is the strip-and-uppercase key normalization applied to catalog keys.
func Simple(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SimpleKey adapts Simple to cell values.
func SimpleKey(v any) string { return Simple(cellText(v)) }
