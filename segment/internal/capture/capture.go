// Package capture turns one page screenshot into per-section JPEG crops on
// disk. The browser is behind the Screenshotter interface so the cropping
// logic can be exercised with generated images.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	"github.com/hazyhaar/vizopt/segment/internal/workspace"
	"github.com/hazyhaar/vizopt/segment/section"
)

// Screenshotter returns an encoded full-page screenshot of a URL.
type Screenshotter interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Config configures a Capturer.
type Config struct {
	// BandHeight is the header and footer height in pixels. Default: 100.
	BandHeight int
	// JPEGQuality of the saved crops, 1-100. Default: 75.
	JPEGQuality int
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.BandHeight <= 0 {
		c.BandHeight = section.DefaultBandHeight
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = jpeg.DefaultQuality
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Capturer crops screenshots into section bands.
type Capturer struct {
	shooter Screenshotter
	cfg     Config
}

// New returns a Capturer taking screenshots through shooter.
func New(shooter Screenshotter, cfg Config) *Capturer {
	cfg.defaults()
	return &Capturer{shooter: shooter, cfg: cfg}
}

// Capture screenshots url and saves the band of one section at its
// workspace path for URL index i. The returned path is empty when the page
// is too short to have that band.
func (c *Capturer) Capture(ctx context.Context, ws *workspace.Workspace, url string, s section.Section, i int) (string, error) {
	paths, err := c.CaptureURL(ctx, ws, url, i, s)
	if err != nil {
		return "", err
	}
	return paths[s], nil
}

// CaptureURL takes a single screenshot of url and saves one crop per
// requested section. Sections whose band is empty are left out of the
// returned map.
func (c *Capturer) CaptureURL(ctx context.Context, ws *workspace.Workspace, url string, i int, sections ...section.Section) (map[section.Section]string, error) {
	if len(sections) == 0 {
		sections = section.All()
	}

	raw, err := c.shooter.Screenshot(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("capture: screenshot %s: %w", url, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("capture: decode screenshot %s: %w", url, err)
	}

	paths := make(map[section.Section]string, len(sections))
	for _, s := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rect, ok := s.Band(img.Bounds(), c.cfg.BandHeight)
		if !ok {
			c.cfg.Logger.Warn("capture: page too short for band",
				"url", url, "section", s, "height", img.Bounds().Dy())
			continue
		}
		path := ws.CapturePath(s, i)
		if err := writeJPEG(path, crop(img, rect), c.cfg.JPEGQuality); err != nil {
			return nil, fmt.Errorf("capture: write %s crop of %s: %w", s, url, err)
		}
		paths[s] = path
	}
	return paths, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop returns the rect region of img. Decoded PNGs implement SubImage;
// anything else is copied pixel by pixel.
func crop(img image.Image, rect image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return out
}

func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
