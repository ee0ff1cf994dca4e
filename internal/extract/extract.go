// Package extract turns rendered document content into ordered dialogue
// turns. It tries an ordered list of container strategies, most specific
// selector first, and accepts the first one whose output clears the
// plausibility threshold.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mentionmarkets/rollcall-sync/internal/normalize"
	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// ErrNoPlausibleContent indicates every strategy was exhausted without
// producing a plausible number of dialogue turns.
var ErrNoPlausibleContent = errors.New("no extraction strategy produced plausible dialogue")

// DefaultSelectors is the container cascade, in priority order. The source
// site's markup drifts, so each entry is a guess that has been right at some
// point; "body" is the whole-page last resort.
var DefaultSelectors = []string{
	".transcript-content",
	".transcript-text",
	".transcript-body",
	"#transcript-content",
	".full-transcript",
	"[data-transcript]",
	"article.transcript",
	"article",
	"main.transcript",
	"main",
	".content-body",
	".content",
	"#transcript",
	"#content",
	"body",
}

// Config controls extraction behavior.
type Config struct {
	// Selectors overrides the container cascade; nil uses DefaultSelectors.
	Selectors []string
	// MinTurns is the plausibility threshold: a strategy wins only when it
	// yields strictly more distinct turns than this.
	MinTurns int
	// Rules is the shared artifact rule set used to recognize metadata and
	// boilerplate lines at segmentation time; nil uses normalize.DefaultRules.
	Rules []normalize.Rule
}

// Document is the structured result of extracting one page.
type Document struct {
	Title    string
	Turns    []transcript.DialogueTurn
	Strategy string
}

// Extractor segments rendered pages into dialogue turns.
type Extractor struct {
	selectors []string
	minTurns  int
	rules     []normalize.Rule
	logger    *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	selectors := cfg.Selectors
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	minTurns := cfg.MinTurns
	if minTurns <= 0 {
		minTurns = 5
	}
	rules := cfg.Rules
	if rules == nil {
		rules = normalize.DefaultRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		selectors: selectors,
		minTurns:  minTurns,
		rules:     rules,
		logger:    logger,
	}
}

// Extract parses the rendered page and returns its title plus ordered
// dialogue turns. The first strategy whose turn count exceeds the
// plausibility threshold wins; later strategies are not tried.
func (e *Extractor) Extract(body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("parse rendered page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())

	for _, selector := range e.selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := renderedText(sel)
		turns := e.segment(text)
		if len(turns) > e.minTurns {
			e.logger.Debug("extraction strategy accepted",
				zap.String("selector", selector),
				zap.Int("turns", len(turns)),
			)
			return Document{Title: title, Turns: turns, Strategy: selector}, nil
		}
		e.logger.Debug("extraction strategy rejected",
			zap.String("selector", selector),
			zap.Int("turns", len(turns)),
			zap.Int("min_turns", e.minTurns),
		)
	}

	return Document{Title: title}, ErrNoPlausibleContent
}

var (
	// suffixedHeadingRe matches the source's disambiguated speaker headings,
	// e.g. "Donald Trump 00".
	suffixedHeadingRe = regexp.MustCompile(`^[A-Z][a-zA-Z\s.'\-]+\s+\d{1,2}$`)
	// plainHeadingRe matches a short title-case name heading, one to four
	// words, e.g. "Donald Trump" or "Mark Levin".
	plainHeadingRe = regexp.MustCompile(`^[A-Z][a-zA-Z.'\-]+(?:\s+[A-Z][a-zA-Z.'\-]+){0,3}$`)
	// timestampFollowRe recognizes the timing line that follows a heading,
	// used to disambiguate a plain name heading from a short dialogue line.
	timestampFollowRe = regexp.MustCompile(`^\d{1,2}:\d{2}-`)
)

// segment walks rendered text lines and groups them into speaker turns.
// A turn starts at a speaker-heading line; the timestamp-range and rating
// lines that trail a heading are structural and never enter the body.
func (e *Extractor) segment(text string) []transcript.DialogueTurn {
	lines := strings.Split(text, "\n")
	var turns []transcript.DialogueTurn

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || e.isBoilerplate(line) {
			i++
			continue
		}

		speaker, ok := headingSpeaker(line)
		if !ok {
			i++
			continue
		}
		i++

		// Structural metadata directly after a heading: one timestamp-range
		// line, blank padding, then an optional rating label.
		if i < len(lines) && e.isMetadata(strings.TrimSpace(lines[i])) {
			i++
		}
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i < len(lines) && e.isMetadata(strings.TrimSpace(lines[i])) {
			i++
		}

		var body []string
		for i < len(lines) {
			next := strings.TrimSpace(lines[i])
			if suffixedHeadingRe.MatchString(next) {
				break
			}
			if plainHeadingRe.MatchString(next) &&
				i+1 < len(lines) && timestampFollowRe.MatchString(strings.TrimSpace(lines[i+1])) {
				break
			}
			if next == "" || e.isMetadata(next) || e.isBoilerplate(next) {
				i++
				continue
			}
			body = append(body, next)
			i++
		}

		if len(body) > 0 {
			turns = append(turns, transcript.DialogueTurn{
				RawSpeakerLabel: speaker,
				RawBodyLines:    body,
			})
		}
	}

	return turns
}

func headingSpeaker(line string) (string, bool) {
	if suffixedHeadingRe.MatchString(line) {
		return line, true
	}
	if plainHeadingRe.MatchString(line) {
		return line, true
	}
	return "", false
}

func (e *Extractor) isMetadata(line string) bool {
	for _, rule := range e.rules {
		if rule.Action != normalize.DropLine {
			continue
		}
		switch rule.Category {
		case normalize.CategoryTimestamp, normalize.CategoryRating:
			if rule.Matches(line) {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) isBoilerplate(line string) bool {
	for _, rule := range e.rules {
		if rule.Category == normalize.CategoryBoilerplate && rule.Matches(line) {
			return true
		}
	}
	return false
}
