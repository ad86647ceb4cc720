// Package normalize turns customer names into comparison keys. The same
// function is applied to catalog names when an index is built and to
// extracted names at query time, so fuzzy scores compare like with like.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	honorifics = []string{"mr.", "mrs.", "ms.", "en.", "pn.", "dr.", "prof."}

	// Longer suffixes first so "sdn bhd" wins over "bhd".
	orgSuffixes = []string{"sdn bhd", "sdn.bhd.", "bhd", "pte ltd", "ltd", "inc", "corp"}

	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Zs}\x{4e00}-\x{9fff}@&().\-]`)
)

// Name returns the comparison key for a raw customer name. It lowercases,
// strips honorific prefixes and company suffixes, replaces characters other
// than letters, digits, whitespace and @&().- with spaces, applies NFKC and
// collapses whitespace. The steps repeat until the result is stable, so
// Name(Name(s)) == Name(s).
func Name(raw string) string {
	current := raw
	// Later passes only strip affixes or redo case and compatibility
	// folding, so the input length bounds the loop.
	for i := 0; i <= len(raw)+4; i++ {
		next := pass(current)
		if next == current {
			return next
		}
		current = next
	}
	return current
}

func pass(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = stripHonorifics(s)
	s = stripSuffixes(s)
	s = disallowed.ReplaceAllString(s, " ")
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func stripHonorifics(s string) string {
	for _, prefix := range honorifics {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

// stripSuffixes removes one organizational suffix. The suffix must be a whole
// trailing word so that names like "Zinc" keep their last letters.
func stripSuffixes(s string) string {
	for _, suffix := range orgSuffixes {
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		rest := s[:len(s)-len(suffix)]
		if rest == "" {
			return s
		}
		if last := []rune(rest); unicode.IsSpace(last[len(last)-1]) || strings.HasSuffix(rest, ".") {
			return strings.TrimSpace(rest)
		}
	}
	return s
}
