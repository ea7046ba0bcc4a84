package retrieval

import (
	"sort"
	"unicode/utf8"

	"github.com/soundprediction/cerca/pkg/types"
)

// AssembleBundle orders the scored pool, deduplicates it by underlying id,
// and cuts it to the configured size budgets. When the single best item
// alone exceeds the character budget, its text is truncated rather than the
// bundle returned empty.
func AssembleBundle(pool []types.Candidate, opts Options) []types.Candidate {
	if len(pool) == 0 {
		return nil
	}

	sorted := make([]types.Candidate, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if sorted[i].Hop != sorted[j].Hop {
			return sorted[i].Hop < sorted[j].Hop
		}
		return sorted[i].Ref() < sorted[j].Ref()
	})

	seen := make(map[string]bool, len(sorted))
	items := make([]types.Candidate, 0, opts.MaxItems)
	chars := 0

	for i := range sorted {
		ref := sorted[i].Ref()
		if ref == "" || seen[ref] {
			continue
		}
		if len(items) == opts.MaxItems {
			break
		}

		text := sorted[i].Text()
		if chars+len(text) > opts.MaxChars {
			if len(items) == 0 {
				items = append(items, truncated(sorted[i], opts.MaxChars))
				seen[ref] = true
			}
			break
		}

		seen[ref] = true
		chars += len(text)
		items = append(items, sorted[i])
	}

	return items
}

// truncated returns a copy of the candidate whose text rendering fits in
// maxChars. The cut applies to the final rendering, so it holds for nodes,
// edges, and chunks alike; the underlying store objects are never mutated.
func truncated(cand types.Candidate, maxChars int) types.Candidate {
	cand.TruncatedText = cut(cand.Text(), maxChars)
	return cand
}

// cut trims s to at most n bytes without splitting a rune.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
