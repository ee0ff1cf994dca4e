package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mentionmarkets/rollcall-sync/internal/archive"
	"github.com/mentionmarkets/rollcall-sync/internal/extract"
	"github.com/mentionmarkets/rollcall-sync/internal/normalize"
	"github.com/mentionmarkets/rollcall-sync/internal/publish"
	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeStore struct {
	records map[string]transcript.Record
	upserts int
	getErr  error
}

func newFakeStore(records ...transcript.Record) *fakeStore {
	s := &fakeStore{records: make(map[string]transcript.Record)}
	for _, rec := range records {
		s.records[rec.SourceURL] = rec
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, url string) (transcript.Record, bool, error) {
	if s.getErr != nil {
		return transcript.Record{}, false, s.getErr
	}
	rec, ok := s.records[url]
	return rec, ok, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec transcript.Record) (bool, error) {
	s.upserts++
	_, existed := s.records[rec.SourceURL]
	s.records[rec.SourceURL] = rec
	return !existed, nil
}

func (s *fakeStore) MaxEventDate(context.Context) (time.Time, bool, error) {
	var max time.Time
	for _, rec := range s.records {
		if rec.WordCount > 0 && rec.EventDate.After(max) {
			max = rec.EventDate
		}
	}
	return max, !max.IsZero(), nil
}

func (s *fakeStore) List(context.Context, transcript.ListFilter) ([]transcript.Record, error) {
	return nil, nil
}

type fakeDiscoverer struct {
	refs    []transcript.SourceReference
	err     error
	since   time.Time
	until   time.Time
	started chan struct{}
	release chan struct{}
}

func (d *fakeDiscoverer) Discover(ctx context.Context, since, until time.Time) ([]transcript.SourceReference, error) {
	d.since, d.until = since, until
	if d.started != nil {
		close(d.started)
	}
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.refs, nil
}

type fakeFetcher struct {
	pages map[string][]byte
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (transcript.Page, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return transcript.Page{}, err
	}
	body, ok := f.pages[url]
	if !ok {
		return transcript.Page{}, fmt.Errorf("no page for %s", url)
	}
	return transcript.Page{URL: url, Body: body, Duration: 100 * time.Millisecond, UsedRenderer: true}, nil
}

func transcriptPage(turns int) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><h1>Donald Trump Remarks at the White House</h1><div class="transcript-content">`)
	for i := 0; i < turns; i++ {
		speaker := "Donald Trump"
		if i%2 == 1 {
			speaker = "Mark Levin"
		}
		fmt.Fprintf(&b, `<p>%s 00</p><p>00:0%d-00:00:10 (10 sec)</p><p>NO STRESSLENS:</p>`, speaker, i%10)
		fmt.Fprintf(&b, `<p>This is spoken line number %d with quite a few ordinary words in it.</p>`, i)
	}
	b.WriteString(`</div></body></html>`)
	return []byte(b.String())
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type testEnv struct {
	orch       *Orchestrator
	store      *fakeStore
	discoverer *fakeDiscoverer
	fetcher    *fakeFetcher
	archive    *archive.Memory
	publisher  *publish.MemoryPublisher
}

func newTestEnv(t *testing.T, store *fakeStore, discoverer *fakeDiscoverer, fetcher *fakeFetcher) testEnv {
	t.Helper()
	mem := archive.NewMemory()
	pub := publish.NewMemory()
	orch, err := New(Deps{
		Store:      store,
		Discoverer: discoverer,
		Fetcher:    fetcher,
		Extractor:  extract.New(extract.Config{}, nil),
		Normalizer: normalize.New(normalize.Config{PrimarySpeaker: "Donald Trump"}),
		Archive:    mem,
		Publisher:  pub,
		Clock:      fakeClock{now: day("2025-01-20")},
	}, Config{
		ItemDelay: time.Millisecond,
		MinWords:  1,
	})
	require.NoError(t, err)
	return testEnv{orch: orch, store: store, discoverer: discoverer, fetcher: fetcher, archive: mem, publisher: pub}
}

func TestRunProcessesOnlyNewDocuments(t *testing.T) {
	existingURL := "https://rollcall.com/factbase/trump/transcript/donald-trump-speech-january-10-2025"
	newURL := "https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-15-2025"

	store := newFakeStore(transcript.Record{
		SourceURL: existingURL,
		EventDate: day("2025-01-10"),
		Dialogue:  "Donald Trump\nThank you very much everybody.\n",
		WordCount: 5,
	})
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{
		{URL: newURL, ClaimedDate: day("2025-01-15")},
		{URL: existingURL, ClaimedDate: day("2025-01-10")},
	}}
	fetcher := &fakeFetcher{pages: map[string][]byte{newURL: transcriptPage(8)}}
	env := newTestEnv(t, store, discoverer, fetcher)

	summary, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Succeeded)
	require.Equal(t, 2, summary.Discovered)
	require.Equal(t, 1, summary.Added)
	require.Zero(t, summary.Updated)
	require.Zero(t, summary.Failed)

	// Window starts one safety buffer before the newest stored event date.
	require.Equal(t, day("2025-01-10").Add(-24*time.Hour), discoverer.since)
	require.Equal(t, day("2025-01-20"), discoverer.until)

	// Only the unknown URL was fetched.
	require.Equal(t, []string{newURL}, fetcher.calls)

	stored := store.records[newURL]
	require.Equal(t, "Donald Trump Remarks at the White House", stored.Title)
	require.Equal(t, day("2025-01-15"), stored.EventDate)
	require.Equal(t, transcript.CategoryRemarks, stored.Category)
	require.Contains(t, stored.Speakers, "Donald Trump")
	require.Contains(t, stored.Speakers, "Mark Levin")
	require.Equal(t, normalize.WordCount(stored.Dialogue), stored.WordCount)
}

func TestRunIsNoOpWhenEverythingStoredClean(t *testing.T) {
	url := "https://rollcall.com/factbase/trump/transcript/donald-trump-speech-january-10-2025"
	store := newFakeStore(transcript.Record{
		SourceURL: url,
		EventDate: day("2025-01-10"),
		Dialogue:  "Donald Trump\nThank you very much everybody.\n",
		WordCount: 5,
	})
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{{URL: url}}}
	fetcher := &fakeFetcher{}
	env := newTestEnv(t, store, discoverer, fetcher)

	summary, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Succeeded)
	require.Zero(t, summary.Added)
	require.Zero(t, summary.Updated)
	require.Zero(t, summary.Failed)
	require.Empty(t, fetcher.calls)
	require.Zero(t, store.upserts)

	state := env.orch.Status()
	require.Equal(t, StatusCompleted, state.Status)
	require.Equal(t, 1, state.Discovered)
	require.Zero(t, state.ToProcess)
}

func TestRunSelfHealsCorruptedRecord(t *testing.T) {
	url := "https://rollcall.com/factbase/trump/transcript/donald-trump-speech-january-10-2025"
	firstSeen := day("2025-01-11")
	store := newFakeStore(transcript.Record{
		SourceURL:        url,
		EventDate:        day("2025-01-10"),
		Dialogue:         "Donald Trump\nThank you. [Applause]\n00:00-00:00:10 (10 sec)\n",
		WordCount:        3,
		FirstPersistedAt: firstSeen,
	})
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{{URL: url}}}
	fetcher := &fakeFetcher{pages: map[string][]byte{url: transcriptPage(8)}}
	env := newTestEnv(t, store, discoverer, fetcher)

	summary, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)
	require.Zero(t, summary.Added)

	healed := store.records[url]
	require.Empty(t, normalize.Signature(normalize.DefaultRules(), healed.Dialogue))
	require.Equal(t, firstSeen, healed.FirstPersistedAt)
	require.Equal(t, day("2025-01-20"), healed.LastNormalizedAt)
}

func TestRunReprocessesEmptyRecord(t *testing.T) {
	url := "https://rollcall.com/factbase/trump/transcript/donald-trump-speech-january-10-2025"
	store := newFakeStore(transcript.Record{
		SourceURL: url,
		EventDate: day("2025-01-10"),
	})
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{{URL: url}}}
	fetcher := &fakeFetcher{pages: map[string][]byte{url: transcriptPage(8)}}
	env := newTestEnv(t, store, discoverer, fetcher)

	summary, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)
	require.Positive(t, store.records[url].WordCount)
}

func TestRunCountsSoftFailuresAndContinues(t *testing.T) {
	badURL := "https://rollcall.com/factbase/trump/transcript/donald-trump-gaggle-january-12-2025"
	goodURL := "https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-15-2025"
	store := newFakeStore()
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{
		{URL: badURL},
		{URL: goodURL},
	}}
	fetcher := &fakeFetcher{
		pages: map[string][]byte{goodURL: transcriptPage(8)},
		errs:  map[string]error{badURL: errors.New("navigation timeout")},
	}
	env := newTestEnv(t, store, discoverer, fetcher)

	summary, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Added)
}

func TestRunFailsWhenDiscoveryFails(t *testing.T) {
	store := newFakeStore()
	discoverer := &fakeDiscoverer{err: errors.New("listing unreachable")}
	env := newTestEnv(t, store, discoverer, &fakeFetcher{})

	_, err := env.orch.RunSync(context.Background())
	require.Error(t, err)

	state := env.orch.Status()
	require.Equal(t, StatusFailed, state.Status)
	require.NotNil(t, state.LastRun)
	require.Contains(t, state.LastRun.Error, "listing unreachable")
}

func TestRunUsesDefaultStartOnEmptyStore(t *testing.T) {
	store := newFakeStore()
	discoverer := &fakeDiscoverer{}
	env := newTestEnv(t, store, discoverer, &fakeFetcher{})

	_, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), discoverer.since)
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	store := newFakeStore()
	discoverer := &fakeDiscoverer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newTestEnv(t, store, discoverer, &fakeFetcher{})

	state, err := env.orch.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRunning, state.Status)

	<-discoverer.started
	_, err = env.orch.Trigger(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(discoverer.release)
	env.orch.Close()
	require.Equal(t, StatusCompleted, env.orch.Status().Status)
}

func TestRunArchivesAndPublishes(t *testing.T) {
	url := "https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-15-2025"
	store := newFakeStore()
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{{URL: url}}}
	fetcher := &fakeFetcher{pages: map[string][]byte{url: transcriptPage(8)}}
	env := newTestEnv(t, store, discoverer, fetcher)

	_, err := env.orch.RunSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, env.archive.Len())

	msgs := env.publisher.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, TopicRecords, msgs[0].Topic)
	require.Equal(t, TopicRuns, msgs[1].Topic)
}

func TestRunRejectsImplausiblyShortDialogue(t *testing.T) {
	url := "https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-15-2025"
	store := newFakeStore()
	discoverer := &fakeDiscoverer{refs: []transcript.SourceReference{{URL: url}}}
	fetcher := &fakeFetcher{pages: map[string][]byte{url: transcriptPage(8)}}

	orch, err := New(Deps{
		Store:      store,
		Discoverer: discoverer,
		Fetcher:    fetcher,
		Extractor:  extract.New(extract.Config{}, nil),
		Normalizer: normalize.New(normalize.Config{}),
		Clock:      fakeClock{now: day("2025-01-20")},
	}, Config{
		ItemDelay: time.Millisecond,
		MinWords:  10_000,
	})
	require.NoError(t, err)

	summary, err := orch.RunSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Zero(t, store.upserts)
}
