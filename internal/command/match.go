package command

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// TabMatcher resolves a loosely spelled tab name ("profle", "road map",
// "intervue") to its canonical form. Commands often arrive from speech, so
// candidates are filtered by Double Metaphone code overlap and ranked by
// Jaro-Winkler similarity; without a phonetic candidate a stricter pure
// Jaro-Winkler threshold applies.
//
// TabMatcher is read-only after construction and safe for concurrent use.
type TabMatcher struct {
	aliases           map[string]string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewTabMatcher returns a matcher over aliases, which maps every accepted
// spelling (lower case) to its canonical tab.
func NewTabMatcher(aliases map[string]string) *TabMatcher {
	a := make(map[string]string, len(aliases))
	for k, v := range aliases {
		a[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &TabMatcher{
		aliases:           a,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
}

// Match returns the canonical tab for name, its similarity score, and whether
// a match was found. Exact alias hits score 1.
func (m *TabMatcher) Match(name string) (tab string, score float64, ok bool) {
	input := normalizeTab(name)
	if input == "" {
		return "", 0, false
	}
	if t, hit := m.aliases[input]; hit {
		return t, 1, true
	}

	inputTokens := strings.Fields(input)
	inputCodes := metaphoneCodes(inputTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for alias, canonical := range m.aliases {
		aliasTokens := strings.Fields(alias)
		s := similarity(inputTokens, aliasTokens, input, alias)
		phonetic := codesOverlap(inputCodes, metaphoneCodes(aliasTokens))

		switch {
		case phonetic && s >= m.phoneticThreshold:
			if !bestPhonetic || s > bestScore || (s == bestScore && canonical < best) {
				best, bestScore, bestPhonetic = canonical, s, true
			}
		case !phonetic && !bestPhonetic && s >= m.fuzzyThreshold:
			if s > bestScore || (s == bestScore && canonical < best) {
				best, bestScore = canonical, s
			}
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// normalizeTab lower-cases name and drops a trailing "tab"/"page" word.
func normalizeTab(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	fields := strings.Fields(s)
	if n := len(fields); n > 1 && (fields[n-1] == "tab" || fields[n-1] == "page") {
		fields = fields[:n-1]
	}
	return strings.Join(fields, " ")
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, their
// space-stripped forms, and every token pair.
func similarity(inputTokens, aliasTokens []string, input, alias string) float64 {
	score := matchr.JaroWinkler(input, alias, false)

	if len(inputTokens) > 1 || len(aliasTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(aliasTokens, ""), false); s > score {
			score = s
		}
	}
	for _, it := range inputTokens {
		for _, at := range aliasTokens {
			if s := matchr.JaroWinkler(it, at, false); s > score {
				score = s
			}
		}
	}
	return score
}
