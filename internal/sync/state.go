package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// Status names one phase of the run lifecycle.
type Status string

// Lifecycle phases. Only one run exists at a time; a new trigger while
// running is rejected, and completed/failed describe the previous run until
// the next trigger.
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// State is the externally visible snapshot of the sync job.
type State struct {
	RunID      string                 `json:"run_id,omitempty"`
	Status     Status                 `json:"status"`
	Progress   string                 `json:"progress,omitempty"`
	Discovered int                    `json:"discovered"`
	ToProcess  int                    `json:"to_process"`
	Processed  int                    `json:"processed"`
	Added      int                    `json:"added"`
	Updated    int                    `json:"updated"`
	Failed     int                    `json:"failed"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	LastRun    *transcript.RunSummary `json:"last_run,omitempty"`
}

// jobState guards the singleton run state. All mutation goes through its
// methods; snapshot returns a copy safe to serialize.
type jobState struct {
	mu  sync.Mutex
	cur State
}

func newJobState() *jobState {
	return &jobState{cur: State{Status: StatusIdle}}
}

func (s *jobState) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// tryStart flips idle/completed/failed to running. Returns false when a run
// is already in flight.
func (s *jobState) tryStart(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Status == StatusRunning {
		return false
	}
	lastRun := s.cur.LastRun
	s.cur = State{
		RunID:     uuid.NewString(),
		Status:    StatusRunning,
		Progress:  "starting",
		StartedAt: &now,
		LastRun:   lastRun,
	}
	return true
}

func (s *jobState) setProgress(format string, args ...any) {
	s.mu.Lock()
	s.cur.Progress = fmt.Sprintf(format, args...)
	s.mu.Unlock()
}

func (s *jobState) setDiscovered(n int) {
	s.mu.Lock()
	s.cur.Discovered = n
	s.mu.Unlock()
}

func (s *jobState) setToProcess(n int) {
	s.mu.Lock()
	s.cur.ToProcess = n
	s.mu.Unlock()
}

type itemOutcome int

const (
	outcomeAdded itemOutcome = iota
	outcomeUpdated
	outcomeFailed
)

func (o itemOutcome) String() string {
	switch o {
	case outcomeAdded:
		return "added"
	case outcomeUpdated:
		return "updated"
	default:
		return "failed"
	}
}

func (s *jobState) recordItem(outcome itemOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Processed++
	switch outcome {
	case outcomeAdded:
		s.cur.Added++
	case outcomeUpdated:
		s.cur.Updated++
	case outcomeFailed:
		s.cur.Failed++
	}
	s.cur.Progress = fmt.Sprintf("processing %d/%d", s.cur.Processed, s.cur.ToProcess)
}

// finish closes the run, keeping the summary as last_run.
func (s *jobState) finish(summary transcript.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary.Succeeded {
		s.cur.Status = StatusCompleted
	} else {
		s.cur.Status = StatusFailed
	}
	s.cur.Progress = ""
	s.cur.LastRun = &summary
}
