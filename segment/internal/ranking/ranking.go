// Package ranking matches section captures against a reference dataset and
// orders the captures by their best similarity.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hazyhaar/vizopt/segment/internal/similarity"
	"github.com/hazyhaar/vizopt/segment/internal/workspace"
	"github.com/hazyhaar/vizopt/segment/section"
)

// MatchResult is the best reference found for one capture. BestMatch is
// empty and Score is 0 when the capture is missing, the dataset is empty
// or no comparison scored above 0.
type MatchResult struct {
	URLKey    string  `json:"url_key"`
	BestMatch string  `json:"best_match,omitempty"`
	Score     float64 `json:"score"`
	ImagePath string  `json:"image_path,omitempty"`
}

// Matched reports whether a reference image was found.
func (m MatchResult) Matched() bool { return m.BestMatch != "" }

// SectionRanking holds the results of one section sorted by descending
// score. Ties keep URL order.
type SectionRanking struct {
	Section section.Section `json:"section"`
	Results []MatchResult   `json:"results"`
}

// Top returns the first result and whether it scored above 0.
func (r SectionRanking) Top() (MatchResult, bool) {
	if len(r.Results) == 0 {
		return MatchResult{}, false
	}
	return r.Results[0], r.Results[0].Score > 0
}

// Ranker compares captures with the reference images stored under
// <datasetRoot>/<section>/.
type Ranker struct {
	scorer      similarity.Scorer
	datasetRoot string
	logger      *slog.Logger
}

// New returns a Ranker. A nil logger uses slog.Default().
func New(scorer similarity.Scorer, datasetRoot string, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{scorer: scorer, datasetRoot: datasetRoot, logger: logger}
}

// References lists the reference images of a section in lexicographic
// order. Hidden files and directories are ignored. A missing section
// directory is an empty dataset.
func (r *Ranker) References(s section.Section) ([]string, error) {
	dir := filepath.Join(r.datasetRoot, string(s))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("ranking: dataset directory missing", "section", s, "dir", dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ranking: read dataset %s: %w", dir, err)
	}

	var refs []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		refs = append(refs, e.Name())
	}
	sort.Strings(refs)
	return refs, nil
}

// Rank scores every capture against every reference of s. captures[i] is
// the capture of URL index i; an empty or missing path scores 0. The
// result has one entry per capture.
func (r *Ranker) Rank(ctx context.Context, s section.Section, captures []string) (SectionRanking, error) {
	refs, err := r.References(s)
	if err != nil {
		return SectionRanking{}, err
	}
	dir := filepath.Join(r.datasetRoot, string(s))

	results := make([]MatchResult, len(captures))
	for i, capture := range captures {
		res := MatchResult{URLKey: workspace.URLKey(i)}
		if capture == "" || !exists(capture) {
			results[i] = res
			continue
		}
		res.ImagePath = capture

		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return SectionRanking{}, fmt.Errorf("ranking: %s: %w", s, err)
			}
			score := r.scorer.Score(capture, filepath.Join(dir, ref))
			if score > res.Score {
				res.Score = score
				res.BestMatch = ref
			}
		}
		results[i] = res
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return SectionRanking{Section: s, Results: results}, nil
}

// RankWorkspace ranks the n captures a run saved for s.
func (r *Ranker) RankWorkspace(ctx context.Context, ws *workspace.Workspace, s section.Section, n int) (SectionRanking, error) {
	captures := make([]string, n)
	for i := range captures {
		captures[i] = ws.CapturePath(s, i)
	}
	return r.Rank(ctx, s, captures)
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
