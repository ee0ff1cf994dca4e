package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// ErrRendererDisabled indicates the static probe was insufficient and no
// browser renderer is configured to take over.
var ErrRendererDisabled = errors.New("page requires rendering but no renderer is configured")

// Chain composes the probe and the renderer behind one PageFetcher: the
// probe runs first, the detector judges its output, and only shell pages
// escalate to the browser. Each URL gets retried per the policy.
type Chain struct {
	probe    transcript.PageFetcher
	renderer transcript.PageFetcher
	detector *Detector
	policy   RetryPolicy
	logger   *zap.Logger
}

// NewChain builds a fallback chain. probe may be nil to always render;
// renderer may be nil when running probe-only (rendering then fails with
// ErrRendererDisabled for pages the detector rejects).
func NewChain(probe, renderer transcript.PageFetcher, detector *Detector, policy RetryPolicy, logger *zap.Logger) *Chain {
	if detector == nil {
		detector = NewDetector(0)
	}
	if policy == nil {
		policy = NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		probe:    probe,
		renderer: renderer,
		detector: detector,
		policy:   policy,
		logger:   logger,
	}
}

// Fetch retrieves one URL, retrying transient failures with backoff.
func (c *Chain) Fetch(ctx context.Context, url string) (transcript.Page, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := c.fetchOnce(ctx, url)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, ErrRendererDisabled) {
			return transcript.Page{}, err
		}
		lastErr = err
		if !c.policy.ShouldRetry(err, attempt+1) {
			break
		}
		wait := c.policy.Backoff(attempt)
		c.logger.Warn("fetch attempt failed, backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return transcript.Page{}, err
		}
	}
	return transcript.Page{}, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (c *Chain) fetchOnce(ctx context.Context, url string) (transcript.Page, error) {
	if c.probe != nil {
		page, err := c.probe.Fetch(ctx, url)
		if err == nil && !c.detector.NeedsRender(page.Body) {
			c.logger.Debug("static probe sufficient", zap.String("url", url), zap.Int("bytes", len(page.Body)))
			return page, nil
		}
		if err != nil {
			c.logger.Debug("static probe failed, escalating to renderer", zap.String("url", url), zap.Error(err))
		}
	}
	if c.renderer == nil {
		return transcript.Page{}, ErrRendererDisabled
	}
	return c.renderer.Fetch(ctx, url)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
