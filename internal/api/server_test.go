package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	syncsvc "github.com/mentionmarkets/rollcall-sync/internal/sync"
	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

type stubController struct {
	state      syncsvc.State
	triggerErr error
	triggers   int
}

func (c *stubController) Trigger(context.Context) (syncsvc.State, error) {
	c.triggers++
	return c.state, c.triggerErr
}

func (c *stubController) Status() syncsvc.State { return c.state }

type stubStore struct {
	records []transcript.Record
	listErr error
	pingErr error
	filter  transcript.ListFilter
}

func (s *stubStore) Get(context.Context, string) (transcript.Record, bool, error) {
	return transcript.Record{}, false, nil
}

func (s *stubStore) Upsert(context.Context, transcript.Record) (bool, error) {
	return false, nil
}

func (s *stubStore) MaxEventDate(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, s.pingErr
}

func (s *stubStore) List(_ context.Context, filter transcript.ListFilter) ([]transcript.Record, error) {
	s.filter = filter
	return s.records, s.listErr
}

func newTestServer(controller SyncController, store transcript.Store, cfg Config) *httptest.Server {
	return httptest.NewServer(NewServer(controller, store, cfg, nil).Handler())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubController{}, &stubStore{}, Config{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyzReportsStoreOutage(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubController{}, &stubStore{pingErr: errors.New("down")}, Config{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTriggerSyncAccepted(t *testing.T) {
	t.Parallel()

	controller := &stubController{state: syncsvc.State{Status: syncsvc.StatusRunning}}
	ts := newTestServer(controller, &stubStore{}, Config{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, controller.triggers)

	var state syncsvc.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, syncsvc.StatusRunning, state.Status)
}

func TestTriggerSyncConflictWhileRunning(t *testing.T) {
	t.Parallel()

	controller := &stubController{
		state:      syncsvc.State{Status: syncsvc.StatusRunning, Processed: 3},
		triggerErr: syncsvc.ErrAlreadyRunning,
	}
	ts := newTestServer(controller, &stubStore{}, Config{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var state syncsvc.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, 3, state.Processed)
}

func TestSyncStatus(t *testing.T) {
	t.Parallel()

	controller := &stubController{state: syncsvc.State{
		Status:     syncsvc.StatusCompleted,
		Discovered: 12,
		Added:      4,
	}}
	ts := newTestServer(controller, &stubStore{}, Config{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sync/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state syncsvc.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, syncsvc.StatusCompleted, state.Status)
	require.Equal(t, 12, state.Discovered)
}

func TestListTranscriptsAppliesFilter(t *testing.T) {
	t.Parallel()

	store := &stubStore{records: []transcript.Record{{SourceURL: "https://example.com/transcript/x"}}}
	ts := newTestServer(&stubController{}, store, Config{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/transcripts?category=Remarks&since=2025-01-01&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "Remarks", store.filter.Category)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), store.filter.Since)
	require.Equal(t, 10, store.filter.Limit)

	var body struct {
		Transcripts []transcript.Record `json:"transcripts"`
		Count       int                 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
}

func TestListTranscriptsRejectsBadDate(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubController{}, &stubStore{}, Config{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/transcripts?since=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&stubController{}, &stubStore{}, Config{AuthEnabled: true, APIKey: "secret"})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sync/status")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/sync/status", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
