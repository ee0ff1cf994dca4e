package cmd

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/mentionmarkets/rollcall-sync/internal/archive"
	"github.com/mentionmarkets/rollcall-sync/internal/config"
	"github.com/mentionmarkets/rollcall-sync/internal/discovery"
	"github.com/mentionmarkets/rollcall-sync/internal/extract"
	"github.com/mentionmarkets/rollcall-sync/internal/fetch"
	"github.com/mentionmarkets/rollcall-sync/internal/normalize"
	"github.com/mentionmarkets/rollcall-sync/internal/publish"
	"github.com/mentionmarkets/rollcall-sync/internal/store"
	syncsvc "github.com/mentionmarkets/rollcall-sync/internal/sync"
	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// pipeline bundles the orchestrator with the resources both commands need.
type pipeline struct {
	orchestrator *syncsvc.Orchestrator
	store        *store.TranscriptStore

	closers []func()
}

// close releases pipeline resources in reverse construction order.
func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// buildPipeline assembles the full sync pipeline from configuration: the
// Postgres store, the probe/render fetch chain, the listing discoverer, the
// extractor and normalizer, plus the optional archive and publisher.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			p.close()
		}
	}()

	db, err := store.New(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	p.closers = append(p.closers, db.Close)
	if err := db.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	p.store = db

	probe := fetch.NewProbe(fetch.ProbeConfig{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})
	var renderer transcript.PageFetcher
	if cfg.Browser.Enabled {
		r, err := fetch.NewRenderer(fetch.RendererConfig{
			MaxParallel:       cfg.Browser.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			SettleDelay:       time.Duration(cfg.Browser.SettleDelayMs) * time.Millisecond,
		}, logger.Named("renderer"))
		if err != nil {
			return nil, fmt.Errorf("init renderer: %w", err)
		}
		p.closers = append(p.closers, r.Close)
		renderer = r
	}
	fetcher := fetch.NewChain(
		probe,
		renderer,
		fetch.NewDetector(cfg.Fetch.BodyThreshold),
		fetch.NewExponentialRetryPolicy(
			cfg.Fetch.MaxRetries,
			time.Duration(cfg.Fetch.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.Fetch.BackoffMaxMs)*time.Millisecond,
		),
		logger.Named("fetch"),
	)

	browser, err := discovery.NewBrowser(discovery.BrowserConfig{
		ListingURL:        cfg.Discovery.ListingURL,
		UserAgent:         cfg.Fetch.UserAgent,
		NavigationTimeout: time.Duration(cfg.Discovery.NavTimeoutSec) * time.Second,
		LinkSelector:      cfg.Discovery.LinkSelector,
	}, logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("init listing browser: %w", err)
	}
	discoverer := discovery.New(browser, discovery.Config{
		LinkMarker:     cfg.Discovery.LinkMarker,
		MaxIdleScrolls: cfg.Discovery.MaxIdleScrolls,
		ScrollDelay:    time.Duration(cfg.Discovery.ScrollDelayMs) * time.Millisecond,
	}, logger.Named("discovery"))

	normalizer := normalize.New(normalize.Config{PrimarySpeaker: cfg.Extract.PrimarySpeaker})
	extractor := extract.New(extract.Config{
		MinTurns: cfg.Extract.MinTurns,
		Rules:    normalizer.Rules(),
	}, logger.Named("extract"))

	blobStore, err := buildArchive(ctx, cfg.Archive, p)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	publisher, err := buildPublisher(ctx, cfg.Publish, p)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}

	defaultStart, err := cfg.DefaultStartDate()
	if err != nil {
		return nil, err
	}
	orchestrator, err := syncsvc.New(syncsvc.Deps{
		Store:      db,
		Discoverer: discoverer,
		Fetcher:    fetcher,
		Extractor:  extractor,
		Normalizer: normalizer,
		Archive:    blobStore,
		Publisher:  publisher,
		Logger:     logger.Named("sync"),
	}, syncsvc.Config{
		SafetyBuffer: time.Duration(cfg.Sync.SafetyBufferHours) * time.Hour,
		DefaultStart: defaultStart,
		ItemDelay:    time.Duration(cfg.Sync.ItemDelayMs) * time.Millisecond,
		MinWords:     cfg.Sync.MinWords,
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}
	p.closers = append(p.closers, orchestrator.Close)
	p.orchestrator = orchestrator

	ok = true
	return p, nil
}

func buildArchive(ctx context.Context, cfg config.ArchiveConfig, p *pipeline) (transcript.BlobStore, error) {
	switch cfg.Backend {
	case "", "none":
		return archive.NewNoop(), nil
	case "memory":
		return archive.NewMemory(), nil
	case "local":
		return archive.NewLocal(cfg.LocalDir, 0)
	case "gcs":
		gcs, err := archive.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() { _ = gcs.Close() })
		return gcs, nil
	default:
		return nil, fmt.Errorf("archive backend %q is not supported", cfg.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.PublishConfig, p *pipeline) (transcript.Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return publish.NewMemory(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		pub, err := publish.NewPubSub(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		p.closers = append(p.closers, func() {
			pub.Close()
			_ = client.Close()
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("publish backend %q is not supported", cfg.Backend)
	}
}
