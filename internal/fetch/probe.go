package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// ProbeConfig controls the plain-HTTP probe collector.
type ProbeConfig struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Probe fetches pages over plain HTTP using a Colly collector. It cannot
// execute script, so its output only matters when the detector judges the
// static response complete enough to skip rendering.
type Probe struct {
	cfg           ProbeConfig
	baseCollector *colly.Collector
}

// NewProbe builds a Probe.
func NewProbe(cfg ProbeConfig) *Probe {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Probe{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET.
func (p *Probe) Fetch(ctx context.Context, url string) (transcript.Page, error) {
	var (
		result   transcript.Page
		fetchErr error
	)
	start := time.Now()

	collector := p.baseCollector.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !p.cfg.RespectRobots
	timeout := p.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = transcript.Page{
			URL:          url,
			FinalURL:     r.Request.URL.String(),
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
			UsedRenderer: false,
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return transcript.Page{}, fmt.Errorf("probe fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return transcript.Page{}, fmt.Errorf("probe visit failed: %w", err)
		}
		if fetchErr != nil {
			return transcript.Page{}, fmt.Errorf("probe response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
