// Package textdiff decides whether an enhanced transcript differs
// materially from the raw transcription it was derived from.
package textdiff

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MateriallyChanged reports whether enhanced differs from raw beyond
// Unicode normalization, letter case, and whitespace shape. Filing an
// unchanged transcript as "enhanced" would over-claim what the engine did.
func MateriallyChanged(raw, enhanced string) bool {
	if strings.TrimSpace(enhanced) == "" {
		return false
	}
	return canonical(raw) != canonical(enhanced)
}

func canonical(s string) string {
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}
