// Package similarity scores how visually close two image files are using a
// 64-bit perceptual hash.
package similarity

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Scorer compares two image files. Score is in [0,1] where 1 means the
// perceptual hashes are identical. Failures yield 0.
type Scorer interface {
	Score(a, b string) float64
}

// maxRecent bounds the hashes kept for the left-hand (capture) side.
const maxRecent = 32

type fileKey struct {
	size  int64
	mtime time.Time
}

type cached struct {
	key  fileKey
	hash *goimagehash.ImageHash
}

// PHash is a Scorer based on the DCT perceptual hash. Hashes of the
// right-hand (reference) images are cached by path and invalidated when
// the file size or modification time changes.
type PHash struct {
	logger *slog.Logger

	mu     sync.Mutex
	refs   map[string]cached
	recent map[string]cached

	// computed counts hash computations; tests read it.
	computed int
}

// Option configures a PHash.
type Option func(*PHash)

// WithLogger sets the logger used for comparison warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *PHash) { p.logger = l }
}

// NewPHash returns a perceptual-hash Scorer.
func NewPHash(opts ...Option) *PHash {
	p := &PHash{
		logger: slog.Default(),
		refs:   make(map[string]cached),
		recent: make(map[string]cached),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Score returns 1 - hamming(phash(a), phash(b)) / bits. Any error is
// logged as a warning and scored 0.
func (p *PHash) Score(a, b string) float64 {
	s, err := p.Compare(a, b)
	if err != nil {
		p.logger.Warn("similarity: compare failed", "a", a, "b", b, "error", err)
		return 0
	}
	return s
}

// Compare is Score with the error returned instead of logged.
func (p *PHash) Compare(a, b string) (float64, error) {
	ha, err := p.hash(a, false)
	if err != nil {
		return 0, err
	}
	hb, err := p.hash(b, true)
	if err != nil {
		return 0, err
	}
	d, err := ha.Distance(hb)
	if err != nil {
		return 0, fmt.Errorf("similarity: distance: %w", err)
	}
	bits := ha.Bits()
	if bits <= 0 {
		return 0, fmt.Errorf("similarity: empty hash for %s", a)
	}
	return 1 - float64(d)/float64(bits), nil
}

func (p *PHash) hash(path string, ref bool) (*goimagehash.ImageHash, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("similarity: stat: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("similarity: %s is not a regular file", path)
	}
	key := fileKey{size: fi.Size(), mtime: fi.ModTime()}

	p.mu.Lock()
	store := p.recent
	if ref {
		store = p.refs
	}
	if c, ok := store[path]; ok && c.key == key {
		p.mu.Unlock()
		return c.hash, nil
	}
	p.mu.Unlock()

	h, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.computed++
	if !ref && len(p.recent) >= maxRecent {
		clear(p.recent)
	}
	store[path] = cached{key: key, hash: h}
	p.mu.Unlock()
	return h, nil
}

func hashFile(path string) (*goimagehash.ImageHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("similarity: open: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("similarity: decode %s: %w", path, err)
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("similarity: phash %s: %w", path, err)
	}
	return h, nil
}
