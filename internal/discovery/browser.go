package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserConfig controls the headless listing browser.
type BrowserConfig struct {
	ListingURL        string
	UserAgent         string
	NavigationTimeout time.Duration
	// LinkSelector is the CSS selector used to harvest document links from
	// the rendered listing.
	LinkSelector string
}

// Browser opens listing sessions in headless Chrome. Each Open gets its own
// allocator so one run's browser lifetime is bounded by the session.
type Browser struct {
	cfg    BrowserConfig
	logger *zap.Logger
}

// NewBrowser builds a Browser.
func NewBrowser(cfg BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if cfg.ListingURL == "" {
		return nil, fmt.Errorf("listing url is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = "a[href*='/transcript/']"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}, nil
}

// Open starts a browser, navigates to the listing, and hands back a session.
func (b *Browser) Open(ctx context.Context) (ListingSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	session := &browserSession{
		tab:          tabCtx,
		cancel:       func() { tabCancel(); allocCancel() },
		linkSelector: b.cfg.LinkSelector,
	}

	navCtx, navCancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer navCancel()

	actions := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return err
			}
			if b.cfg.UserAgent != "" {
				return emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx)
			}
			return nil
		}),
		chromedp.Navigate(b.cfg.ListingURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, actions); err != nil {
		session.Close()
		return nil, fmt.Errorf("open listing %s: %w", b.cfg.ListingURL, err)
	}

	b.logger.Debug("listing session opened", zap.String("url", b.cfg.ListingURL))
	return session, nil
}

type browserSession struct {
	tab          context.Context
	cancel       context.CancelFunc
	linkSelector string
}

func (s *browserSession) Scroll(ctx context.Context) error {
	runCtx, cancel := joinContexts(s.tab, ctx)
	defer cancel()
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
	if err != nil {
		return fmt.Errorf("scroll listing: %w", err)
	}
	return nil
}

func (s *browserSession) Links(ctx context.Context) ([]string, error) {
	runCtx, cancel := joinContexts(s.tab, ctx)
	defer cancel()

	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(a => a.href)`,
		s.linkSelector,
	)
	var links []string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &links)); err != nil {
		return nil, fmt.Errorf("collect listing links: %w", err)
	}
	return links, nil
}

func (s *browserSession) Close() {
	s.cancel()
}

// joinContexts derives a context from the tab that is also canceled when the
// caller's context ends. chromedp actions must run on the tab context chain,
// so the caller's deadline cannot be passed in directly.
func joinContexts(tab, caller context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(caller, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
