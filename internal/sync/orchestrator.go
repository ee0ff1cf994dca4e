// Package sync coordinates one serialized synchronization run: it computes
// the incremental window from the store, discovers candidate documents,
// and pipes each one through fetch, extraction, normalization, and upsert.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mentionmarkets/rollcall-sync/internal/clock/system"
	"github.com/mentionmarkets/rollcall-sync/internal/discovery"
	"github.com/mentionmarkets/rollcall-sync/internal/extract"
	"github.com/mentionmarkets/rollcall-sync/internal/hash/sha256"
	"github.com/mentionmarkets/rollcall-sync/internal/metrics"
	"github.com/mentionmarkets/rollcall-sync/internal/normalize"
	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// ErrAlreadyRunning signals a trigger arrived while a run was in flight.
// The caller gets the current state; nothing about the active run changes.
var ErrAlreadyRunning = errors.New("a sync run is already in progress")

// Event topics.
const (
	TopicRecords = "transcript-records"
	TopicRuns    = "sync-runs"
)

// Config controls run behavior.
type Config struct {
	// SafetyBuffer is subtracted from the newest stored event date when
	// computing the window start, so late-published documents near the
	// boundary are re-checked. Default one day.
	SafetyBuffer time.Duration
	// DefaultStart is the window start used when the store is empty.
	DefaultStart time.Time
	// ItemDelay is the politeness pause between successive documents.
	ItemDelay time.Duration
	// MinWords rejects extractions whose total dialogue is implausibly
	// short; such documents count as failed and stay eligible for retry.
	MinWords int
}

// Deps are the collaborators a run needs. Store, Discoverer, Fetcher,
// Extractor, and Normalizer are required; Archive, Publisher, Clock, and
// Logger default to no-op or system implementations.
type Deps struct {
	Store      transcript.Store
	Discoverer transcript.Discoverer
	Fetcher    transcript.PageFetcher
	Extractor  *extract.Extractor
	Normalizer *normalize.Normalizer
	Archive    transcript.BlobStore
	Publisher  transcript.Publisher
	Clock      transcript.Clock
	Logger     *zap.Logger
}

// Orchestrator owns the singleton sync job.
type Orchestrator struct {
	cfg        Config
	store      transcript.Store
	discoverer transcript.Discoverer
	fetcher    transcript.PageFetcher
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	archive    transcript.BlobStore
	publisher  transcript.Publisher
	clock      transcript.Clock
	hasher     *sha256.Hasher
	limiter    *rate.Limiter
	logger     *zap.Logger

	state *jobState

	mu        sync.Mutex
	wg        sync.WaitGroup
	cancelRun context.CancelFunc
}

// New builds an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Discoverer == nil:
		return nil, fmt.Errorf("discoverer is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("normalizer is required")
	}
	if cfg.SafetyBuffer <= 0 {
		cfg.SafetyBuffer = 24 * time.Hour
	}
	if cfg.DefaultStart.IsZero() {
		cfg.DefaultStart = time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.ItemDelay <= 0 {
		cfg.ItemDelay = 1500 * time.Millisecond
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 25
	}
	clock := deps.Clock
	if clock == nil {
		clock = system.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	archive := deps.Archive
	if archive == nil {
		archive = noopArchive{}
	}
	metrics.Init()

	return &Orchestrator{
		cfg:        cfg,
		store:      deps.Store,
		discoverer: deps.Discoverer,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		normalizer: deps.Normalizer,
		archive:    archive,
		publisher:  deps.Publisher,
		clock:      clock,
		hasher:     sha256.New(),
		limiter:    rate.NewLimiter(rate.Every(cfg.ItemDelay), 1),
		logger:     logger,
		state:      newJobState(),
	}, nil
}

// Status returns the current job snapshot.
func (o *Orchestrator) Status() State {
	return o.state.snapshot()
}

// Trigger starts a run in the background and returns the state right after
// the transition. A trigger during an active run is a no-op returning
// ErrAlreadyRunning with the unchanged state.
func (o *Orchestrator) Trigger(ctx context.Context) (State, error) {
	if !o.state.tryStart(o.clock.Now()) {
		return o.state.snapshot(), ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancelRun = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(runCtx)
	}()

	return o.state.snapshot(), nil
}

// Close cancels any active run and waits for it to unwind.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// RunSync performs one run synchronously; used by the one-shot command mode.
func (o *Orchestrator) RunSync(ctx context.Context) (transcript.RunSummary, error) {
	if !o.state.tryStart(o.clock.Now()) {
		return transcript.RunSummary{}, ErrAlreadyRunning
	}
	summary := o.run(ctx)
	if !summary.Succeeded {
		return summary, errors.New(summary.Error)
	}
	return summary, nil
}

func (o *Orchestrator) run(ctx context.Context) transcript.RunSummary {
	metrics.RunStarted()
	defer metrics.RunFinished()

	since, until := o.window(ctx)
	summary := transcript.RunSummary{Since: since, Until: until}

	o.logger.Info("sync run started",
		zap.Time("since", since),
		zap.Time("until", until),
	)

	o.state.setProgress("discovering %s", summary.DateRange())
	refs, err := o.discoverer.Discover(ctx, since, until)
	if err != nil {
		return o.fail(ctx, summary, fmt.Errorf("discover documents: %w", err))
	}
	summary.Discovered = len(refs)
	o.state.setDiscovered(len(refs))

	work := o.selectWork(ctx, refs)
	o.state.setToProcess(len(work))
	o.logger.Info("processing set selected",
		zap.Int("discovered", len(refs)),
		zap.Int("to_process", len(work)),
	)

	for _, item := range work {
		if err := o.limiter.Wait(ctx); err != nil {
			return o.fail(ctx, summary, fmt.Errorf("run canceled: %w", err))
		}
		outcome := o.processItem(ctx, item)
		o.state.recordItem(outcome)
		metrics.ObserveDocument(outcome.String())
		switch outcome {
		case outcomeAdded:
			summary.Added++
		case outcomeUpdated:
			summary.Updated++
		case outcomeFailed:
			summary.Failed++
		}
	}

	summary.Succeeded = true
	o.state.finish(summary)
	metrics.ObserveRun(string(StatusCompleted), summary.Discovered)
	o.publishEvent(ctx, TopicRuns, summary)
	o.logger.Info("sync run completed",
		zap.Int("discovered", summary.Discovered),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (o *Orchestrator) fail(ctx context.Context, summary transcript.RunSummary, err error) transcript.RunSummary {
	summary.Error = err.Error()
	o.state.finish(summary)
	metrics.ObserveRun(string(StatusFailed), summary.Discovered)
	o.publishEvent(ctx, TopicRuns, summary)
	o.logger.Error("sync run failed", zap.Error(err))
	return summary
}

// window computes the incremental date range: from the newest stored event
// date minus the safety buffer, up to now. An empty store falls back to the
// configured default start.
func (o *Orchestrator) window(ctx context.Context) (time.Time, time.Time) {
	until := o.clock.Now()
	maxDate, found, err := o.store.MaxEventDate(ctx)
	if err != nil || !found {
		if err != nil {
			o.logger.Warn("max event date unavailable, using default start", zap.Error(err))
		}
		return o.cfg.DefaultStart, until
	}
	return maxDate.Add(-o.cfg.SafetyBuffer), until
}

type workItem struct {
	ref      transcript.SourceReference
	existing transcript.Record
	found    bool
	reason   string
}

// selectWork filters discovered references down to the ones needing a pass:
// unknown URLs, rows that persisted empty, and rows whose stored dialogue
// still matches a removal rule (stored corrupted by an earlier version).
func (o *Orchestrator) selectWork(ctx context.Context, refs []transcript.SourceReference) []workItem {
	var work []workItem
	for _, ref := range refs {
		rec, found, err := o.store.Get(ctx, ref.URL)
		if err != nil {
			o.logger.Warn("store lookup failed, scheduling for processing",
				zap.String("url", ref.URL),
				zap.Error(err),
			)
			work = append(work, workItem{ref: ref, reason: "lookup-error"})
			continue
		}
		switch {
		case !found:
			work = append(work, workItem{ref: ref, reason: "new"})
		case rec.Empty():
			work = append(work, workItem{ref: ref, existing: rec, found: true, reason: "empty"})
		default:
			if sig := normalize.Signature(o.normalizer.Rules(), rec.Dialogue); len(sig) > 0 {
				o.logger.Info("stored record carries artifacts, re-normalizing",
					zap.String("url", ref.URL),
					zap.Strings("categories", sig),
				)
				work = append(work, workItem{ref: ref, existing: rec, found: true, reason: "corrupted"})
			}
		}
	}
	return work
}

// processItem runs the per-document pipeline. Failures here are soft: the
// item is counted and the run moves on.
func (o *Orchestrator) processItem(ctx context.Context, item workItem) itemOutcome {
	url := item.ref.URL
	log := o.logger.With(zap.String("url", url), zap.String("reason", item.reason))

	page, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		return outcomeFailed
	}
	metrics.ObserveFetch(page.Duration)

	doc, err := o.extractor.Extract(page.Body)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		return outcomeFailed
	}

	res := o.normalizer.Normalize(doc.Turns)
	for category, count := range res.Stats {
		metrics.ObserveArtifactsRemoved(category, count)
	}
	if res.WordCount < o.cfg.MinWords {
		log.Warn("dialogue implausibly short",
			zap.Int("words", res.WordCount),
			zap.Int("min_words", o.cfg.MinWords),
		)
		return outcomeFailed
	}

	now := o.clock.Now()
	rec := o.buildRecord(item, doc, res, now)

	o.archivePage(ctx, rec, page, log)

	created, err := o.store.Upsert(ctx, rec)
	if err != nil {
		log.Warn("upsert failed", zap.Error(err))
		return outcomeFailed
	}

	o.publishEvent(ctx, TopicRecords, recordEvent{
		SourceURL: rec.SourceURL,
		EventDate: rec.EventDate,
		Created:   created,
		WordCount: rec.WordCount,
	})

	log.Info("document stored",
		zap.Bool("created", created),
		zap.Int("turns", len(doc.Turns)),
		zap.Int("words", res.WordCount),
		zap.String("strategy", doc.Strategy),
	)
	if created {
		return outcomeAdded
	}
	return outcomeUpdated
}

func (o *Orchestrator) buildRecord(item workItem, doc extract.Document, res normalize.Result, now time.Time) transcript.Record {
	url := item.ref.URL

	title := doc.Title
	if title == "" {
		title = extract.TitleFromURL(url)
	}

	eventDate, ok := discovery.DateFromURL(url)
	if !ok {
		eventDate = item.ref.ClaimedDate
	}
	if eventDate.IsZero() && item.found {
		eventDate = item.existing.EventDate
	}

	firstPersisted := now
	if item.found && !item.existing.FirstPersistedAt.IsZero() {
		firstPersisted = item.existing.FirstPersistedAt
	}

	return transcript.Record{
		SourceURL:               url,
		Title:                   title,
		EventDate:               eventDate,
		Category:                extract.CategoryFor(title, url),
		Location:                item.existing.Location,
		Dialogue:                res.Dialogue,
		WordCount:               res.WordCount,
		PrimarySpeakerWordCount: res.PrimaryWordCount,
		Speakers:                res.Speakers,
		FirstPersistedAt:        firstPersisted,
		LastNormalizedAt:        now,
	}
}

// archivePage stores the raw rendered page. Best effort: archive failures
// never fail the item.
func (o *Orchestrator) archivePage(ctx context.Context, rec transcript.Record, page transcript.Page, log *zap.Logger) {
	digest, err := o.hasher.Hash([]byte(rec.SourceURL))
	if err != nil {
		log.Warn("hash archive path", zap.Error(err))
		return
	}
	day := rec.EventDate
	if day.IsZero() {
		day = rec.LastNormalizedAt
	}
	path := fmt.Sprintf("raw/%s/%s.html", day.Format("2006-01-02"), digest)
	uri, err := o.archive.PutObject(ctx, path, "text/html", page.Body)
	if err != nil {
		log.Warn("archive page", zap.Error(err))
		return
	}
	if uri != "" {
		log.Debug("page archived", zap.String("uri", uri))
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, topic string, payload any) {
	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.Publish(ctx, topic, payload); err != nil {
		o.logger.Warn("publish event", zap.String("topic", topic), zap.Error(err))
	}
}

type recordEvent struct {
	SourceURL string    `json:"source_url"`
	EventDate time.Time `json:"event_date"`
	Created   bool      `json:"created"`
	WordCount int       `json:"word_count"`
}

type noopArchive struct{}

func (noopArchive) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
