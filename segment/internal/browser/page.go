package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Page is one scoped tab. Callers must Close it.
type Page struct {
	*rod.Page
	URL    string
	router *rod.HijackRouter
}

// OpenPage creates a tab, applies stealth and resource blocking, sets the
// viewport and navigates to pageURL within the manager's navigate timeout.
// On error the tab is already closed.
func OpenPage(ctx context.Context, mgr *Manager, pageURL string) (*Page, error) {
	b, err := mgr.Browser(ctx)
	if err != nil {
		return nil, err
	}
	cfg := mgr.cfg

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	p := &Page{Page: page, URL: pageURL}

	if len(cfg.ResourceBlocking) > 0 {
		p.router = applyResourceBlocking(page, cfg.ResourceBlocking)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		// A page that never fires load still has something worth capturing,
		// unless the caller itself gave up.
		if ctx.Err() != nil {
			p.Close()
			return nil, fmt.Errorf("browser: wait load %s: %w", pageURL, ctx.Err())
		}
		cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	if cfg.CheckURL != nil {
		info, err := page.Info()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("browser: page info %s: %w", pageURL, err)
		}
		if info.URL != pageURL {
			if err := cfg.CheckURL(ctx, info.URL); err != nil {
				p.Close()
				return nil, fmt.Errorf("browser: %s redirected to %s: %w", pageURL, info.URL, err)
			}
		}
	}
	return p, nil
}

// FullScreenshot returns a PNG of the whole scrollable page.
func (p *Page) FullScreenshot(ctx context.Context) ([]byte, error) {
	data, err := p.Page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot %s: %w", p.URL, err)
	}
	return data, nil
}

// Close stops request interception and closes the tab.
func (p *Page) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
		p.router = nil
	}
	if p.Page != nil {
		return p.Page.Close()
	}
	return nil
}

// Shooter takes full-page screenshots through a Manager, one tab per call.
type Shooter struct {
	mgr *Manager
}

// NewShooter returns a Shooter backed by mgr.
func NewShooter(mgr *Manager) *Shooter {
	return &Shooter{mgr: mgr}
}

// Screenshot opens pageURL in a fresh tab and returns a full-page PNG.
// The tab is closed whatever happens.
func (s *Shooter) Screenshot(ctx context.Context, pageURL string) ([]byte, error) {
	p, err := OpenPage(ctx, s.mgr, pageURL)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.FullScreenshot(ctx)
}
