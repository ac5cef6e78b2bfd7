// Package workspace lays out the request-scoped directories that hold the
// transient section captures of one analysis run.
//
//	<input-root>/<request-id>/<section>/url<n>_<section>.jpg
//
// Scoping by request id lets concurrent runs capture into the same input
// root without overwriting each other.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/vizopt/segment/section"
)

// Workspace is the working area of one run.
type Workspace struct {
	root      string
	requestID string
}

// New returns the workspace for requestID under root. Nothing is created
// on disk until Prepare is called.
func New(root, requestID string) *Workspace {
	return &Workspace{root: root, requestID: requestID}
}

// RequestID returns the run identifier.
func (w *Workspace) RequestID() string { return w.requestID }

// Dir is the run directory.
func (w *Workspace) Dir() string {
	return filepath.Join(w.root, w.requestID)
}

// SectionDir is the directory holding the captures of one section.
func (w *Workspace) SectionDir(s section.Section) string {
	return filepath.Join(w.Dir(), string(s))
}

// CapturePath is the deterministic path of the capture of URL index i
// (zero-based) for section s.
func (w *Workspace) CapturePath(s section.Section, i int) string {
	return filepath.Join(w.SectionDir(s), fmt.Sprintf("%s_%s.jpg", URLKey(i), s))
}

// Prepare creates one directory per section.
func (w *Workspace) Prepare(sections []section.Section) error {
	for _, s := range sections {
		if err := os.MkdirAll(w.SectionDir(s), 0o755); err != nil {
			return fmt.Errorf("workspace: mkdir %s: %w", s, err)
		}
	}
	return nil
}

// Remove deletes the section directories and the run directory. Missing
// directories are not an error, so Remove may be called more than once.
func (w *Workspace) Remove(sections []section.Section) error {
	for _, s := range sections {
		if err := os.RemoveAll(w.SectionDir(s)); err != nil {
			return fmt.Errorf("workspace: remove %s: %w", s, err)
		}
	}
	if err := os.RemoveAll(w.Dir()); err != nil {
		return fmt.Errorf("workspace: remove run dir: %w", err)
	}
	return nil
}

// URLKey is the label of URL index i in rankings ("url1" for index 0).
func URLKey(i int) string {
	return fmt.Sprintf("url%d", i+1)
}
