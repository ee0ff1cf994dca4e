package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	// pages holds the cumulative link set visible after each scroll; index 0
	// is what the listing shows before any scrolling.
	pages   [][]string
	scrolls int
	closed  bool
	linkErr error
}

func (f *fakeSession) Scroll(context.Context) error {
	f.scrolls++
	return nil
}

func (f *fakeSession) Links(context.Context) ([]string, error) {
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	idx := f.scrolls
	if idx >= len(f.pages) {
		idx = len(f.pages) - 1
	}
	return f.pages[idx], nil
}

func (f *fakeSession) Close() { f.closed = true }

type fakeOpener struct {
	session *fakeSession
	err     error
}

func (f *fakeOpener) Open(context.Context) (ListingSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDiscoverStopsAtWindowStart(t *testing.T) {
	t.Parallel()

	session := &fakeSession{pages: [][]string{
		{
			"https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-10-2025",
			"https://rollcall.com/factbase/trump/transcript/donald-trump-interview-january-8-2025",
		},
		{
			"https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-10-2025",
			"https://rollcall.com/factbase/trump/transcript/donald-trump-interview-january-8-2025",
			"https://rollcall.com/factbase/trump/transcript/donald-trump-speech-january-2-2025",
		},
	}}
	d := New(&fakeOpener{session: session}, Config{ScrollDelay: time.Millisecond}, nil)

	refs, err := d.Discover(context.Background(), day("2025-01-05"), day("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, day("2025-01-10"), refs[0].ClaimedDate)
	require.Equal(t, day("2025-01-08"), refs[1].ClaimedDate)
	require.True(t, session.closed)
	// The January 2 link predates the window, so discovery must stop after
	// the scroll that revealed it.
	require.Equal(t, 1, session.scrolls)
}

func TestDiscoverStopsAfterIdleScrolls(t *testing.T) {
	t.Parallel()

	session := &fakeSession{pages: [][]string{
		{"https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-10-2025"},
	}}
	d := New(&fakeOpener{session: session}, Config{MaxIdleScrolls: 3, ScrollDelay: time.Millisecond}, nil)

	refs, err := d.Discover(context.Background(), day("2025-01-01"), day("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, 4, session.scrolls)
}

func TestDiscoverDeduplicatesAcrossScrolls(t *testing.T) {
	t.Parallel()

	link := "https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-10-2025"
	session := &fakeSession{pages: [][]string{
		{link, link + "?tab=full", link + "#top"},
	}}
	d := New(&fakeOpener{session: session}, Config{MaxIdleScrolls: 1, ScrollDelay: time.Millisecond}, nil)

	refs, err := d.Discover(context.Background(), day("2025-01-01"), day("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, link, refs[0].URL)
}

func TestDiscoverKeepsUndatedLinks(t *testing.T) {
	t.Parallel()

	session := &fakeSession{pages: [][]string{
		{"https://rollcall.com/factbase/trump/transcript/special-event-no-date"},
	}}
	d := New(&fakeOpener{session: session}, Config{MaxIdleScrolls: 1, ScrollDelay: time.Millisecond}, nil)

	refs, err := d.Discover(context.Background(), day("2025-01-01"), day("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.True(t, refs[0].ClaimedDate.IsZero())
}

func TestDiscoverIgnoresForeignLinks(t *testing.T) {
	t.Parallel()

	session := &fakeSession{pages: [][]string{
		{
			"https://rollcall.com/about-us",
			"https://rollcall.com/factbase/trump/transcript/donald-trump-remarks-january-10-2025",
		},
	}}
	d := New(&fakeOpener{session: session}, Config{MaxIdleScrolls: 1, ScrollDelay: time.Millisecond}, nil)

	refs, err := d.Discover(context.Background(), day("2025-01-01"), day("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestDiscoverFatalWhenListingUnreachable(t *testing.T) {
	t.Parallel()

	d := New(&fakeOpener{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}, Config{}, nil)

	_, err := d.Discover(context.Background(), day("2025-01-01"), day("2025-01-15"))
	require.ErrorIs(t, err, ErrDiscoveryFailed)
}

func TestDiscoverFatalWhenLinksFail(t *testing.T) {
	t.Parallel()

	session := &fakeSession{linkErr: errors.New("tab crashed")}
	d := New(&fakeOpener{session: session}, Config{ScrollDelay: time.Millisecond}, nil)

	_, err := d.Discover(context.Background(), day("2025-01-01"), day("2025-01-15"))
	require.ErrorIs(t, err, ErrDiscoveryFailed)
	require.True(t, session.closed)
}

func TestDateFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want time.Time
		ok   bool
	}{
		{"https://x.com/transcript/donald-trump-remarks-january-7-2025", day("2025-01-07"), true},
		{"https://x.com/transcript/donald-trump-speech-december-25-2024", day("2024-12-25"), true},
		{"https://x.com/transcript/event-2025-03-04-remarks", day("2025-03-04"), true},
		{"https://x.com/transcript/no-date-here", time.Time{}, false},
		{"https://x.com/transcript/bad-month-45-2025", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := DateFromURL(tt.url)
		require.Equal(t, tt.ok, ok, "url=%s", tt.url)
		if tt.ok {
			require.Equal(t, tt.want, got, "url=%s", tt.url)
		}
	}
}
