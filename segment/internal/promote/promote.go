// Package promote copies the winning capture of each section into the
// shared best-images directory.
package promote

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hazyhaar/vizopt/segment/internal/ranking"
	"github.com/hazyhaar/vizopt/segment/section"
)

// BestImage is a promoted capture. Data holds the bytes that were written
// so later stages never re-read a file another run may overwrite.
type BestImage struct {
	Section section.Section
	Path    string
	Source  string
	Score   float64
	Data    []byte
}

// Promoter writes best_<section>.jpg files under one root. Writes from
// concurrent runs are serialized.
type Promoter struct {
	root string
	mu   sync.Mutex
}

// New returns a Promoter writing into root.
func New(root string) *Promoter {
	return &Promoter{root: root}
}

// Path is where the best image of s is stored.
func (p *Promoter) Path(s section.Section) string {
	return filepath.Join(p.root, fmt.Sprintf("best_%s.jpg", s))
}

// Promote copies the top capture of r to best_<section>.jpg when its score
// is above 0. ok is false when nothing was promoted.
func (p *Promoter) Promote(r ranking.SectionRanking) (img BestImage, ok bool, err error) {
	top, ok := r.Top()
	if !ok || top.ImagePath == "" {
		return BestImage{}, false, nil
	}

	data, err := os.ReadFile(top.ImagePath)
	if err != nil {
		return BestImage{}, false, fmt.Errorf("promote: read %s: %w", top.ImagePath, err)
	}

	dest := p.Path(r.Section)
	if err := p.write(dest, data); err != nil {
		return BestImage{}, false, err
	}
	return BestImage{
		Section: r.Section,
		Path:    dest,
		Source:  top.ImagePath,
		Score:   top.Score,
		Data:    data,
	}, true, nil
}

// write replaces dest atomically through a temp file in the same directory.
func (p *Promoter) write(dest string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("promote: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(p.root, ".best-*.tmp")
	if err != nil {
		return fmt.Errorf("promote: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("promote: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("promote: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("promote: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("promote: rename: %w", err)
	}
	return nil
}
