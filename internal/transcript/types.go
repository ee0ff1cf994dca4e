// Package transcript defines core types shared across subsystems.
package transcript

import (
	"time"
)

// SourceReference points at one candidate document found during discovery.
// It is ephemeral: only used to decide whether the URL needs processing.
type SourceReference struct {
	URL         string
	ClaimedDate time.Time
}

// DialogueTurn is the intermediate produced by the structural extractor:
// one speaker heading plus the free-text lines attributed to it, before
// any normalization has been applied.
type DialogueTurn struct {
	RawSpeakerLabel string
	RawBodyLines    []string
}

// Category classifies the kind of event a transcript covers.
type Category string

// Category values inferred from title/URL keywords.
const (
	CategorySpeech          Category = "Speech"
	CategoryInterview       Category = "Interview"
	CategoryPressConference Category = "Press Conference"
	CategoryPressGaggle     Category = "Press Gaggle"
	CategoryPressBriefing   Category = "Press Briefing"
	CategoryRemarks         Category = "Remarks"
)

// Record is the durable, canonical representation of one source document.
// SourceURL is the unique identity key; Dialogue holds ordered
// "speaker\nbody\n" blocks using one fixed delimiter template.
type Record struct {
	SourceURL               string    `json:"source_url"`
	Title                   string    `json:"title"`
	EventDate               time.Time `json:"event_date"`
	Category                Category  `json:"category"`
	Location                string    `json:"location"`
	Dialogue                string    `json:"dialogue"`
	WordCount               int       `json:"word_count"`
	PrimarySpeakerWordCount int       `json:"primary_speaker_word_count"`
	Speakers                []string  `json:"speakers"`
	FirstPersistedAt        time.Time `json:"first_persisted_at"`
	LastNormalizedAt        time.Time `json:"last_normalized_at"`
}

// Empty reports whether the record carries no usable dialogue. Empty rows
// are re-processed by the next sync pass.
func (r Record) Empty() bool {
	return r.WordCount == 0 || r.Dialogue == ""
}

// Page is the result of fetching one document URL.
type Page struct {
	URL          string
	FinalURL     string
	Body         []byte
	Duration     time.Duration
	UsedRenderer bool
}

// RunSummary is the terminal result of one sync run.
type RunSummary struct {
	Succeeded  bool      `json:"success"`
	Discovered int       `json:"discovered"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
	Error      string    `json:"error,omitempty"`
}

// DateRange renders the window covered by the run.
func (s RunSummary) DateRange() string {
	return s.Since.Format("2006-01-02") + " to " + s.Until.Format("2006-01-02")
}
