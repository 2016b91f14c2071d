package akeraapi

// MatchPattern reports whether s matches a MATCHES pattern. A '*' matches any
// run of characters and a '.' matches exactly one. The SQL wildcards '%' and
// '_' are accepted as synonyms, since ORM like-patterns are passed through
// unchanged. Matching is case-sensitive and covers the whole string.
func MatchPattern(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)

	// Iterative wildcard match with single-star backtracking.
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(r) {
		switch {
		case pi < len(p) && isAnyRun(p[pi]):
			star = pi
			mark = si
			pi++
		case pi < len(p) && (isAnyOne(p[pi]) || p[pi] == r[si]):
			pi++
			si++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && isAnyRun(p[pi]) {
		pi++
	}
	return pi == len(p)
}

func isAnyRun(c rune) bool { return c == '*' || c == '%' }

func isAnyOne(c rune) bool { return c == '.' || c == '_' }
