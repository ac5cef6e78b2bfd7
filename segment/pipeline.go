package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/vizopt/advisor"
	"github.com/hazyhaar/vizopt/history"
	"github.com/hazyhaar/vizopt/kit"
	"github.com/hazyhaar/vizopt/segment/internal/promote"
	"github.com/hazyhaar/vizopt/segment/internal/ranking"
	"github.com/hazyhaar/vizopt/segment/internal/workspace"
	"github.com/hazyhaar/vizopt/shield"
)

// Result is the outcome of one analysis.
type Result struct {
	RequestID   string            `json:"request_id"`
	Rankings    string            `json:"rankings"`
	Suggestions []advisor.Bundle  `json:"suggestions"`
	BestImages  map[string]string `json:"best_images"`
	Warning     string            `json:"warning,omitempty"`
}

// Analyze validates req and runs capture, ranking, promotion and advisory
// in order. Failures are *Error values; validation failures happen before
// any file is written or any call is made.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkTargets(ctx, req.URLs); err != nil {
		return nil, err
	}

	id := s.newID()
	ctx = kit.WithRequestID(ctx, id)
	logger := shield.GetLogger(ctx).With("request_id", id)
	ctx = shield.WithLogger(ctx, logger)

	start := time.Now()
	res, err := s.run(ctx, id, req)
	s.record(ctx, id, req, res, err, time.Since(start))

	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			logger.Error("segment: analysis failed", "stage", e.Stage, "kind", e.Kind, "error", err)
		}
		return nil, err
	}
	logger.Info("segment: analysis done",
		"sections", len(res.Suggestions),
		"duration", time.Since(start))
	return res, nil
}

// checkTargets refuses URLs that point into private networks unless the
// configuration allows them.
func (s *Service) checkTargets(ctx context.Context, urls []string) error {
	if s.cfg.Capture.AllowPrivateTargets {
		return nil
	}
	for i, u := range urls {
		if err := s.guard.CheckTarget(ctx, u); err != nil {
			return validationError(fmt.Sprintf("URL %d is not allowed: %v", i+1, err))
		}
	}
	return nil
}

func (s *Service) run(ctx context.Context, id string, req AnalyzeRequest) (*Result, error) {
	logger := shield.GetLogger(ctx)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, stageError(KindCapture, "queue", fmt.Errorf("wait for a free run slot: %w", err))
	}
	defer s.sem.Release(1)

	ws := workspace.New(s.cfg.Paths.InputRoot, id)
	if err := ws.Prepare(s.sections); err != nil {
		return nil, stageError(KindCapture, "capture", err)
	}
	defer func() {
		if err := ws.Remove(s.sections); err != nil {
			logger.Warn("segment: workspace cleanup", "error", err)
		}
	}()

	stageStart := time.Now()
	err := s.captureAll(ctx, ws, req.URLs)
	s.observe("capture", stageStart, err)
	if err != nil {
		return nil, err
	}

	stageStart = time.Now()
	rankings := make([]ranking.SectionRanking, 0, len(s.sections))
	for _, sec := range s.sections {
		r, err := s.ranker.RankWorkspace(ctx, ws, sec, len(req.URLs))
		if err != nil {
			s.observe("ranking", stageStart, err)
			return nil, stageError(KindRanking, "ranking", err)
		}
		rankings = append(rankings, r)
	}
	s.observe("ranking", stageStart, nil)

	stageStart = time.Now()
	best, err := s.promoteAll(ctx, ws, rankings)
	s.observe("promotion", stageStart, err)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RequestID:   id,
		Rankings:    FormatRankings(rankings),
		Suggestions: make([]advisor.Bundle, 0, len(best)),
		BestImages:  make(map[string]string, len(best)),
		Warning:     domainWarning(req.URLs),
	}
	for _, img := range best {
		res.BestImages[string(img.Section)] = s.publish(ctx, id, img)
	}

	stageStart = time.Now()
	for _, img := range best {
		if s.advisor == nil {
			err := errors.New("advisor: not configured")
			s.observe("advisory", stageStart, err)
			return nil, stageError(KindAdvisory, "advisory", err)
		}
		b, err := s.advisor.Suggest(ctx, advisor.Request{
			Image:       img.Data,
			MIMEType:    "image/jpeg",
			Section:     string(img.Section),
			WebsiteType: req.WebsiteType,
		})
		if err != nil {
			s.observe("advisory", stageStart, err)
			return nil, stageError(KindAdvisory, "advisory", err)
		}
		res.Suggestions = append(res.Suggestions, b)
	}
	if len(best) > 0 {
		s.observe("advisory", stageStart, nil)
	}
	return res, nil
}

// promoteAll promotes the winner of every section, then removes the
// request's captures.
func (s *Service) promoteAll(ctx context.Context, ws *workspace.Workspace, rankings []ranking.SectionRanking) ([]promote.BestImage, error) {
	logger := shield.GetLogger(ctx)
	var best []promote.BestImage
	for _, r := range rankings {
		img, ok, err := s.promoter.Promote(r)
		if err != nil {
			return nil, stageError(KindPromotion, "promotion", err)
		}
		if ok {
			logger.Info("segment: promoted", "section", img.Section, "source", img.Source, "score", img.Score)
			best = append(best, img)
		}
	}
	if err := ws.Remove(s.sections); err != nil {
		return nil, stageError(KindPromotion, "promotion", err)
	}
	return best, nil
}

func (s *Service) observe(stage string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.Observe(stage, time.Since(start), err == nil)
}

// captureAll captures every URL concurrently under the capture timeout.
// One screenshot per URL serves all sections.
func (s *Service) captureAll(ctx context.Context, ws *workspace.Workspace, urls []string) error {
	timeout := s.cfg.Timeouts.Capture
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(cctx)
	g.SetLimit(max(s.cfg.Capture.Concurrency, 1))
	for i, u := range urls {
		g.Go(func() error {
			_, err := s.capturer.CaptureURL(gctx, ws, u, i, s.sections...)
			return err
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &Error{Kind: KindTimeout, Stage: "capture", Err: fmt.Errorf("capture timed out after %s: %w", timeout, err)}
	}
	return stageError(KindCapture, "capture", err)
}

// publish mirrors img and returns where it can be found. The local path is
// the fallback when publishing is disabled or fails.
func (s *Service) publish(ctx context.Context, id string, img promote.BestImage) string {
	if s.publisher == nil {
		return img.Path
	}
	loc, err := s.publisher.Publish(ctx, id, fmt.Sprintf("best_%s.jpg", img.Section), img.Data)
	if err != nil {
		shield.GetLogger(ctx).Warn("segment: publish failed, keeping local path",
			"section", img.Section, "error", err)
		return img.Path
	}
	return loc
}

// record stores the run outcome. It runs even when the request context is
// cancelled and never fails the request.
func (s *Service) record(ctx context.Context, id string, req AnalyzeRequest, res *Result, runErr error, elapsed time.Duration) {
	if s.history == nil {
		return
	}
	run := &history.Run{
		ID:          id,
		URLs:        req.URLs,
		WebsiteType: req.WebsiteType,
		Status:      history.StatusOK,
		DurationMs:  elapsed.Milliseconds(),
	}
	if runErr != nil {
		run.Status = history.StatusFailed
		run.Error = runErr.Error()
	}
	if res != nil {
		run.Rankings = res.Rankings
		run.BestImages = res.BestImages
		if data, err := json.Marshal(res.Suggestions); err == nil {
			run.Suggestions = data
		}
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.Record(rctx, run); err != nil {
		shield.GetLogger(ctx).Warn("segment: record run", "error", err)
	}
}
