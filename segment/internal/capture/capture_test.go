package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/hazyhaar/vizopt/segment/internal/workspace"
	"github.com/hazyhaar/vizopt/segment/section"
)

type fakeShooter struct {
	png   []byte
	err   error
	calls int
}

func (f *fakeShooter) Screenshot(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.png, f.err
}

// stripedPNG is w x h with a red header band, green body and blue footer.
func stripedPNG(t *testing.T, w, h, band int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := color.RGBA{0, 200, 0, 255}
		switch {
		case y < band:
			c = color.RGBA{200, 0, 0, 255}
		case y >= h-band:
			c = color.RGBA{0, 0, 200, 255}
		}
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func prepared(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(t.TempDir(), "req")
	if err := ws.Prepare(section.All()); err != nil {
		t.Fatal(err)
	}
	return ws
}

func decodeJPEG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestCaptureURL_AllSections(t *testing.T) {
	shooter := &fakeShooter{png: stripedPNG(t, 400, 1000, 100)}
	c := New(shooter, Config{})
	ws := prepared(t)

	paths, err := c.CaptureURL(context.Background(), ws, "https://a.example", 0)
	if err != nil {
		t.Fatalf("CaptureURL: %v", err)
	}
	if shooter.calls != 1 {
		t.Errorf("screenshots taken = %d, want 1", shooter.calls)
	}

	wantHeights := map[section.Section]int{
		section.Header: 100,
		section.Body:   800,
		section.Footer: 100,
	}
	for s, h := range wantHeights {
		if paths[s] != ws.CapturePath(s, 0) {
			t.Errorf("%s path = %q", s, paths[s])
		}
		img := decodeJPEG(t, paths[s])
		if img.Bounds().Dx() != 400 || img.Bounds().Dy() != h {
			t.Errorf("%s size = %v, want 400x%d", s, img.Bounds().Size(), h)
		}
	}

	// WHAT: the header crop holds the red band only.
	r, g, _, _ := decodeJPEG(t, paths[section.Header]).At(200, 50).RGBA()
	if r>>8 < 150 || g>>8 > 60 {
		t.Errorf("header pixel not red: r=%d g=%d", r>>8, g>>8)
	}
}

func TestCapture_SingleSection(t *testing.T) {
	c := New(&fakeShooter{png: stripedPNG(t, 300, 600, 100)}, Config{})
	ws := prepared(t)

	path, err := c.Capture(context.Background(), ws, "https://a.example", section.Footer, 2)
	if err != nil {
		t.Fatal(err)
	}
	if path != ws.CapturePath(section.Footer, 2) {
		t.Fatalf("path = %q", path)
	}
	if _, err := os.Stat(ws.CapturePath(section.Header, 2)); !os.IsNotExist(err) {
		t.Fatal("header must not be written when only footer is requested")
	}
}

func TestCaptureURL_ShortPageSkipsBody(t *testing.T) {
	c := New(&fakeShooter{png: stripedPNG(t, 300, 150, 100)}, Config{})
	ws := prepared(t)

	paths, err := c.CaptureURL(context.Background(), ws, "https://short.example", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := paths[section.Body]; ok {
		t.Fatal("body band should be skipped on a 150px page")
	}
	if paths[section.Header] == "" || paths[section.Footer] == "" {
		t.Fatalf("header/footer should be captured: %v", paths)
	}
}

func TestCaptureURL_BandHeightConfig(t *testing.T) {
	c := New(&fakeShooter{png: stripedPNG(t, 200, 500, 50)}, Config{BandHeight: 50})
	ws := prepared(t)

	paths, err := c.CaptureURL(context.Background(), ws, "https://a.example", 0, section.Header)
	if err != nil {
		t.Fatal(err)
	}
	if h := decodeJPEG(t, paths[section.Header]).Bounds().Dy(); h != 50 {
		t.Fatalf("header height = %d, want 50", h)
	}
}

func TestCaptureURL_ShooterError(t *testing.T) {
	boom := errors.New("chrome crashed")
	c := New(&fakeShooter{err: boom}, Config{})

	_, err := c.CaptureURL(context.Background(), prepared(t), "https://a.example", 0)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestCaptureURL_BadImage(t *testing.T) {
	c := New(&fakeShooter{png: []byte("not an image")}, Config{})
	if _, err := c.CaptureURL(context.Background(), prepared(t), "https://a.example", 0); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCaptureURL_MissingDir(t *testing.T) {
	c := New(&fakeShooter{png: stripedPNG(t, 100, 400, 100)}, Config{})
	ws := workspace.New(t.TempDir(), "unprepared")
	if _, err := c.CaptureURL(context.Background(), ws, "https://a.example", 0); err == nil {
		t.Fatal("expected write error without prepared workspace")
	}
}
