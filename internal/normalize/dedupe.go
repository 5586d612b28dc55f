package normalize

import "strings"

// DefaultSimilarityThreshold is the near-duplicate cutoff for adjacent
// fragment collapsing. Exact duplication is the common case (MathJax
// leaves both the source and the rendered copy in the DOM); the
// threshold catches copies that differ only in stray whitespace or a
// swapped glyph.
const DefaultSimilarityThreshold = 0.9

// CollapseAdjacentDuplicates removes adjacent duplicate fragments from
// plain text: first duplicated lines, then duplicated whitespace-
// separated tokens within each line. Only neighbours are compared, so
// legitimately repeated values further apart survive.
func CollapseAdjacentDuplicates(text string, threshold float64) string {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	lines := strings.Split(text, "\n")
	out := lines[:0]
	var prev string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i > 0 && trimmed != "" && similar(trimmed, prev, threshold) {
			continue
		}
		out = append(out, collapseTokens(line, threshold))
		if trimmed != "" {
			prev = trimmed
		}
	}
	return strings.Join(out, "\n")
}

// collapseTokens drops a token when it near-matches its predecessor.
func collapseTokens(line string, threshold float64) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return line
	}

	out := fields[:1]
	for _, f := range fields[1:] {
		if similar(f, out[len(out)-1], threshold) {
			continue
		}
		out = append(out, f)
	}

	if len(out) == len(fields) {
		return line
	}
	// Rebuilding loses the original intra-line spacing, which the
	// whitespace pass would collapse anyway.
	return strings.Join(out, " ")
}

// similar reports whether two fragments are exact or near-exact
// duplicates under the threshold.
func similar(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	// Short fragments that differ at all are kept: "(2" vs "(3" is a
	// real difference, not a rendering artifact.
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest < 6 {
		return false
	}
	dist := levenshtein(ra, rb)
	return 1.0-float64(dist)/float64(longest) >= threshold
}

// levenshtein computes edit distance over runes.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
