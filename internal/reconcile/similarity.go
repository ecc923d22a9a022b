package reconcile

import "strings"

// Similarity scores how alike two vendor names are, in [0, 1].
// Pluggable so deployments can swap in a fuzzier matcher.
type Similarity func(a, b string) float64

// canonicalize lowercases, strips punctuation and collapses whitespace
// so "ACME, Ltd." and "acme ltd" compare equal.
func canonicalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NameSimilarity is the default vendor name matcher: exact canonical
// match scores 1.0, containment either way 0.8, otherwise word overlap
// scaled into [0.2, 0.6].
func NameSimilarity(a, b string) float64 {
	ca, cb := canonicalize(a), canonicalize(b)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1.0
	}
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return 0.8
	}

	wordsA := strings.Fields(ca)
	wordsB := strings.Fields(cb)
	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}

	union := make(map[string]bool, len(wordsA)+len(wordsB))
	for _, w := range wordsA {
		union[w] = true
	}
	intersection := 0
	for _, w := range wordsB {
		if setA[w] {
			intersection++
		}
		union[w] = true
	}
	if intersection == 0 {
		return 0
	}

	jaccard := float64(intersection) / float64(len(union))
	return 0.2 + 0.4*jaccard
}
