package segment

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/vizopt/segment/internal/ranking"
)

// RankingsTitle heads the rankings report.
const RankingsTitle = "🎯 Final Rankings per Section (Sorted by Best Similarity Score):"

// FormatRankings renders the plain-text report clients parse:
//
//	🎯 Final Rankings per Section (Sorted by Best Similarity Score):
//
//	Section: HEADER
//	1. url2 (Best Match: ref_a.jpg, Similarity: 0.984)
//	2. url3 (No matches found in dataset)
func FormatRankings(rankings []ranking.SectionRanking) string {
	var b strings.Builder
	b.WriteString(RankingsTitle)
	b.WriteString("\n")
	for _, r := range rankings {
		fmt.Fprintf(&b, "\nSection: %s\n", r.Section.Upper())
		for i, m := range r.Results {
			if m.Matched() {
				fmt.Fprintf(&b, "%d. %s (Best Match: %s, Similarity: %.3f)\n", i+1, m.URLKey, m.BestMatch, m.Score)
			} else {
				fmt.Fprintf(&b, "%d. %s (No matches found in dataset)\n", i+1, m.URLKey)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
