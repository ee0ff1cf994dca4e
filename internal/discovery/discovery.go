// Package discovery enumerates candidate document URLs by scrolling the
// source's infinite listing page in a headless browser. The listing is
// newest first, so scrolling walks backwards in time; discovery stops when
// scrolling stalls or when the listing reaches dates older than the window.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// ErrDiscoveryFailed indicates the listing itself could not be read. Unlike
// per-document failures, this aborts the whole run: an unreachable listing
// means the universe of work is unknown.
var ErrDiscoveryFailed = errors.New("listing discovery failed")

// ListingSession is one open listing page that can be scrolled and queried
// for document links.
type ListingSession interface {
	Scroll(ctx context.Context) error
	Links(ctx context.Context) ([]string, error)
	Close()
}

// Opener starts a listing session; the browser-backed implementation
// navigates to the listing URL before returning.
type Opener interface {
	Open(ctx context.Context) (ListingSession, error)
}

// Config controls the scroll loop.
type Config struct {
	// LinkMarker is the substring that identifies document links on the
	// listing page.
	LinkMarker string
	// MaxIdleScrolls is the number of consecutive scrolls yielding no new
	// links before discovery concludes the listing is exhausted. There is
	// deliberately no cap on total scrolls; the window bound and the idle
	// bound are the only stop conditions.
	MaxIdleScrolls int
	// ScrollDelay is the pause after each scroll, giving lazy-loaded rows
	// time to attach.
	ScrollDelay time.Duration
}

// Discoverer walks the listing and reports the URLs inside a date window.
type Discoverer struct {
	opener Opener
	cfg    Config
	logger *zap.Logger
}

// New builds a Discoverer.
func New(opener Opener, cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.LinkMarker == "" {
		cfg.LinkMarker = "/transcript/"
	}
	if cfg.MaxIdleScrolls <= 0 {
		cfg.MaxIdleScrolls = 10
	}
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = 750 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{opener: opener, cfg: cfg, logger: logger}
}

// Discover scrolls the listing until it stalls or passes the window start,
// returning deduplicated references in listing order (newest first).
// URLs whose slug carries no parseable date are kept; downstream processing
// decides what to do with them.
func (d *Discoverer) Discover(ctx context.Context, since, until time.Time) ([]transcript.SourceReference, error) {
	session, err := d.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}
	defer session.Close()

	seen := make(map[string]struct{})
	var refs []transcript.SourceReference
	idle := 0
	scrolls := 0

	for idle < d.cfg.MaxIdleScrolls {
		links, err := session.Links(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: read links after %d scrolls: %v", ErrDiscoveryFailed, scrolls, err)
		}

		added := 0
		pastWindow := false
		for _, link := range links {
			normalized, ok := d.normalizeLink(link)
			if !ok {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}

			date, dated := DateFromURL(normalized)
			if dated && date.Before(since) {
				// Listing is newest first: one pre-window date means
				// everything below it is older still.
				pastWindow = true
				continue
			}
			if dated && date.After(until) {
				continue
			}
			refs = append(refs, transcript.SourceReference{URL: normalized, ClaimedDate: date})
			added++
		}

		if pastWindow {
			d.logger.Info("listing reached window start",
				zap.Int("scrolls", scrolls),
				zap.Int("discovered", len(refs)),
			)
			return refs, nil
		}
		if added == 0 {
			idle++
		} else {
			idle = 0
		}

		if err := session.Scroll(ctx); err != nil {
			return nil, fmt.Errorf("%w: scroll %d: %v", ErrDiscoveryFailed, scrolls+1, err)
		}
		scrolls++
		if err := sleepCtx(ctx, d.cfg.ScrollDelay); err != nil {
			return nil, err
		}
	}

	d.logger.Info("listing exhausted",
		zap.Int("scrolls", scrolls),
		zap.Int("idle_scrolls", idle),
		zap.Int("discovered", len(refs)),
	)
	return refs, nil
}

func (d *Discoverer) normalizeLink(link string) (string, bool) {
	if !strings.Contains(link, d.cfg.LinkMarker) {
		return "", false
	}
	parsed, err := url.Parse(link)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimSuffix(parsed.String(), "/"), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("discovery canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
