package segment

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/vizopt/advisor"
	"github.com/hazyhaar/vizopt/config"
	"github.com/hazyhaar/vizopt/segment/section"
)

var testURLs = []string{
	"https://a.example.com/",
	"https://b.example.com/",
	"https://www.example.com/shop",
}

// fakeShooter serves a generated page per URL.
type fakeShooter struct {
	mu    sync.Mutex
	pages map[string][]byte
	fail  map[string]error
	block bool
	calls []string
}

func (f *fakeShooter) Screenshot(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	err := f.fail[url]
	page, ok := f.pages[url]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return solidPNG(nil, 200, 400, color.RGBA{128, 128, 128, 255}), nil
	}
	return page, nil
}

func (f *fakeShooter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// tableScorer scores "<capture base>|<reference base>" pairs; anything
// else scores 0.
type tableScorer map[string]float64

func (t tableScorer) Score(a, b string) float64 {
	return t[filepath.Base(a)+"|"+filepath.Base(b)]
}

type mockAdvisor struct{ mock.Mock }

func (m *mockAdvisor) Suggest(ctx context.Context, req advisor.Request) (advisor.Bundle, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(advisor.Bundle), args.Error(1)
}

func (m *mockAdvisor) Chat(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockAdvisor) Model() string { return "mock" }

// suggestFor expects one Suggest call for sec and answers with one line.
func (m *mockAdvisor) suggestFor(sec section.Section, line string) *mock.Call {
	return m.On("Suggest", mock.Anything, mock.MatchedBy(func(r advisor.Request) bool {
		return r.Section == string(sec)
	})).Return(advisor.Bundle{
		WebsiteType: advisor.DefaultWebsiteType,
		SectionType: string(sec),
		Suggestions: []string{line},
	}, nil).Once()
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, requestID, name string, data []byte) (string, error) {
	args := m.Called(ctx, requestID, name, data)
	return args.String(0), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points every root into a temp directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.InputRoot = filepath.Join(root, "input")
	cfg.Paths.DatasetRoot = filepath.Join(root, "dataset")
	cfg.Paths.BestRoot = filepath.Join(root, "best")
	cfg.History.Path = ""
	cfg.Capture.AllowPrivateTargets = true
	return &cfg
}

// writeDataset creates <root>/<section>/<name> for every section.
func writeDataset(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, s := range section.All() {
		dir := filepath.Join(root, string(s))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("ref"), 0o644))
		}
	}
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		if t != nil {
			t.Fatal(err)
		}
		panic(err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, cfg *config.Config, shooter Screenshotter, adv advisor.Advisor, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithScreenshotter(shooter)}, opts...)
	svc := New(cfg, adv, discardLogger(), opts...)
	t.Cleanup(func() { svc.Close() })
	return svc
}
