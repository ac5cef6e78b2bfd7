// Package segment runs the vizopt analysis pipeline: capture three pages,
// crop them into header, body and footer bands, rank the crops against a
// reference dataset, promote the best crop per section and ask a vision
// model for suggestions on each promoted image.
//
// The pipeline is exposed over HTTP (RegisterHTTP) and MCP (RegisterMCP).
// Chrome is started lazily on the first capture unless a Screenshotter is
// injected with WithScreenshotter.
package segment

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/vizopt/advisor"
	"github.com/hazyhaar/vizopt/config"
	"github.com/hazyhaar/vizopt/history"
	"github.com/hazyhaar/vizopt/idgen"
	"github.com/hazyhaar/vizopt/publish"
	"github.com/hazyhaar/vizopt/safeguard"
	"github.com/hazyhaar/vizopt/segment/internal/browser"
	"github.com/hazyhaar/vizopt/segment/internal/capture"
	"github.com/hazyhaar/vizopt/segment/internal/promote"
	"github.com/hazyhaar/vizopt/segment/internal/ranking"
	"github.com/hazyhaar/vizopt/segment/internal/similarity"
	"github.com/hazyhaar/vizopt/segment/internal/workspace"
	"github.com/hazyhaar/vizopt/segment/section"
)

// Screenshotter returns an encoded full-page screenshot of a URL.
type Screenshotter interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Scorer returns the similarity of two image files in [0,1].
type Scorer interface {
	Score(a, b string) float64
}

// RunStore persists run records.
type RunStore interface {
	Record(ctx context.Context, r *history.Run) error
	Get(ctx context.Context, id string) (*history.Run, error)
	List(ctx context.Context, limit int) ([]*history.Run, error)
}

// StageMetrics receives the duration of every pipeline stage.
type StageMetrics interface {
	Observe(stage string, d time.Duration, ok bool)
	Summary(ctx context.Context, since time.Time) ([]history.StageSummary, error)
}

// capturer and ranker are the stage contracts the pipeline drives.
type capturer interface {
	CaptureURL(ctx context.Context, ws *workspace.Workspace, url string, i int, sections ...section.Section) (map[section.Section]string, error)
}

type ranker interface {
	Rank(ctx context.Context, s section.Section, captures []string) (ranking.SectionRanking, error)
	RankWorkspace(ctx context.Context, ws *workspace.Workspace, s section.Section, n int) (ranking.SectionRanking, error)
}

// Service runs analyses. It is safe for concurrent use.
type Service struct {
	cfg       *config.Config
	capturer  capturer
	ranker    ranker
	promoter  *promote.Promoter
	advisor   advisor.Advisor
	history   RunStore
	metrics   StageMetrics
	publisher publish.Publisher
	newID     idgen.Generator
	guard     safeguard.Guard
	sem       *semaphore.Weighted
	sections  []section.Section
	mgr       *browser.Manager
	logger    *slog.Logger

	shooter Screenshotter
	scorer  Scorer
}

// Option configures a Service.
type Option func(*Service)

// WithScreenshotter replaces the managed Chrome instance.
func WithScreenshotter(s Screenshotter) Option {
	return func(svc *Service) { svc.shooter = s }
}

// WithScorer replaces the perceptual hash scorer.
func WithScorer(s Scorer) Option {
	return func(svc *Service) { svc.scorer = s }
}

// WithHistory records every validated run in store.
func WithHistory(store RunStore) Option {
	return func(svc *Service) { svc.history = store }
}

// WithStageMetrics records stage durations in m.
func WithStageMetrics(m StageMetrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithPublisher mirrors promoted images through p.
func WithPublisher(p publish.Publisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

// WithIDGenerator sets the request id generator. Ids name working
// directories, so they must be unique and filesystem safe.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(svc *Service) { svc.newID = gen }
}

// WithTargetGuard replaces the check applied to URLs before capture.
func WithTargetGuard(g safeguard.Guard) Option {
	return func(svc *Service) { svc.guard = g }
}

// New creates a Service from cfg. adv may be nil for a service that only
// ranks images; Analyze then fails at the advisory stage.
func New(cfg *config.Config, adv advisor.Advisor, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:      cfg,
		advisor:  adv,
		newID:    idgen.Default,
		sections: section.All(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.shooter == nil {
		var checkURL func(context.Context, string) error
		if !cfg.Capture.AllowPrivateTargets {
			checkURL = s.guard.CheckTarget
		}
		s.mgr = browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			NavigateTimeout:  cfg.Browser.NavigateTimeout,
			ViewportWidth:    cfg.Browser.ViewportWidth,
			ViewportHeight:   cfg.Browser.ViewportHeight,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Stealth:          !cfg.Browser.DisableStealth,
			CheckURL:         checkURL,
			Logger:           logger,
		})
		s.shooter = browser.NewShooter(s.mgr)
	}
	if s.scorer == nil {
		s.scorer = similarity.NewPHash(similarity.WithLogger(logger))
	}

	s.capturer = capture.New(s.shooter, capture.Config{
		BandHeight:  cfg.Capture.BandHeight,
		JPEGQuality: cfg.Capture.JPEGQuality,
		Logger:      logger,
	})
	s.ranker = ranking.New(s.scorer, cfg.Paths.DatasetRoot, logger)
	s.promoter = promote.New(cfg.Paths.BestRoot)

	runs := cfg.Limits.MaxConcurrentRuns
	if runs <= 0 {
		runs = 1
	}
	s.sem = semaphore.NewWeighted(int64(runs))
	return s
}

// Start launches the managed browser ahead of the first request. It is a
// no-op when a Screenshotter was injected.
func (s *Service) Start() error {
	if s.mgr == nil {
		return nil
	}
	return s.mgr.Start()
}

// Close shuts the managed browser down.
func (s *Service) Close() error {
	if s.mgr == nil {
		return nil
	}
	return s.mgr.Close()
}

// HistoryEnabled reports whether runs are recorded.
func (s *Service) HistoryEnabled() bool { return s.history != nil }
