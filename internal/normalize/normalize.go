package normalize

import (
	"regexp"
	"strings"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// Stats counts removals per artifact category for one normalization pass.
type Stats map[string]int

// Add merges other into s.
func (s Stats) Add(other Stats) {
	for k, v := range other {
		s[k] += v
	}
}

// Turn is one cleaned speaker/utterance pair.
type Turn struct {
	Speaker string
	Text    string
}

// Result is the canonical output for one document.
type Result struct {
	Dialogue         string
	Speakers         []string
	WordCount        int
	PrimaryWordCount int
	Stats            Stats
}

var (
	// Speaker label suffixes, stripped in this order: a label can carry
	// several at once ("Donald Trump 00 (00:10:12)").
	speakerParenTimestampRe = regexp.MustCompile(`\s*\((?:\d{1,2}:)?\d{1,2}:\d{2}(?::\d{2})?\)\s*$`)
	speakerBareTimestampRe  = regexp.MustCompile(`\s+(?:\d{1,2}:)?\d{1,2}:\d{2}(?::\d{2})?\s*$`)
	speakerNumericSuffixRe  = regexp.MustCompile(`\s+\d{1,2}\s*$`)

	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Normalizer converts extractor output into canonical transcript text.
type Normalizer struct {
	rules          []Rule
	primarySpeaker string
}

// Config controls normalization behavior.
type Config struct {
	// PrimarySpeaker is the canonical name whose word count is tracked
	// separately (e.g. "Donald Trump").
	PrimarySpeaker string
	// Rules overrides the default artifact rule set; nil uses DefaultRules.
	Rules []Rule
}

// New builds a Normalizer.
func New(cfg Config) *Normalizer {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	return &Normalizer{
		rules:          rules,
		primarySpeaker: strings.ToLower(strings.TrimSpace(cfg.PrimarySpeaker)),
	}
}

// Rules exposes the active rule set so the store's corruption check and the
// normalizer always evaluate the same list.
func (n *Normalizer) Rules() []Rule {
	return n.rules
}

// CleanSpeaker strips source-injected suffixes from a raw speaker label.
// Order matters: parenthetical timestamp, then bare timestamp token, then
// bare numeric suffix, then trailing colon.
func CleanSpeaker(raw string) (string, bool) {
	label := strings.TrimSpace(raw)
	orig := label
	label = speakerParenTimestampRe.ReplaceAllString(label, "")
	label = speakerBareTimestampRe.ReplaceAllString(label, "")
	label = speakerNumericSuffixRe.ReplaceAllString(label, "")
	label = strings.TrimRight(label, ":")
	label = strings.TrimSpace(label)
	return label, label != orig
}

// NormalizeTurn cleans one raw turn. An empty Text means the turn carried no
// speech (only artifacts) and should be dropped from assembly.
func (n *Normalizer) NormalizeTurn(turn transcript.DialogueTurn) (Turn, Stats) {
	stats := Stats{}

	speaker, modified := CleanSpeaker(turn.RawSpeakerLabel)
	if modified {
		stats[CategorySpeakerSuffix]++
	}

	// Blank lines are dropped inside a turn: the block template reserves
	// the blank line as the delimiter between turns.
	var kept []string
	for _, raw := range turn.RawBodyLines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		line, dropped := n.applyRules(line, stats)
		if dropped {
			continue
		}
		if line != "" {
			kept = append(kept, line)
		}
	}

	text := strings.TrimSpace(strings.Join(kept, "\n"))

	return Turn{Speaker: speaker, Text: text}, stats
}

func (n *Normalizer) applyRules(line string, stats Stats) (string, bool) {
	for _, rule := range n.rules {
		switch rule.Action {
		case DropLine:
			if rule.Matches(line) {
				stats[rule.Category]++
				return "", true
			}
		case StripInline:
			if matches := rule.Pattern.FindAllString(line, -1); len(matches) > 0 {
				stats[rule.Category] += len(matches)
				line = rule.Pattern.ReplaceAllString(line, "")
				line = strings.Join(strings.Fields(line), " ")
				if line == "" {
					return "", true
				}
			}
		}
	}
	return line, false
}

// Normalize cleans all turns and assembles the canonical dialogue using the
// fixed "{speaker}\n{text}\n" block template. Word counts are whitespace
// token counts of the cleaned text only, never of speaker labels.
//
// The function is pure and idempotent: feeding its own output back through
// extraction and normalization removes nothing further.
func (n *Normalizer) Normalize(turns []transcript.DialogueTurn) Result {
	stats := Stats{}
	var blocks []string
	var speakers []string
	seen := map[string]bool{}
	wordCount := 0
	primaryCount := 0

	for _, raw := range turns {
		turn, turnStats := n.NormalizeTurn(raw)
		stats.Add(turnStats)
		if turn.Speaker == "" || turn.Text == "" {
			continue
		}
		if !seen[turn.Speaker] {
			seen[turn.Speaker] = true
			speakers = append(speakers, turn.Speaker)
		}
		tokens := len(strings.Fields(turn.Text))
		wordCount += tokens
		if n.isPrimary(turn.Speaker) {
			primaryCount += tokens
		}
		blocks = append(blocks, turn.Speaker+"\n"+turn.Text+"\n")
	}

	// Guard against blank-line runs surviving assembly: three or more
	// consecutive blank lines collapse to exactly one.
	dialogue := blankRunRe.ReplaceAllString(strings.Join(blocks, "\n"), "\n\n")

	return Result{
		Dialogue:         dialogue,
		Speakers:         speakers,
		WordCount:        wordCount,
		PrimaryWordCount: primaryCount,
		Stats:            stats,
	}
}

func (n *Normalizer) isPrimary(speaker string) bool {
	if n.primarySpeaker == "" {
		return false
	}
	lower := strings.ToLower(speaker)
	return lower == n.primarySpeaker || strings.Contains(lower, n.primarySpeaker)
}

// WordCount returns the whitespace-token count of canonical dialogue text,
// excluding the speaker heading of each block. Used to verify the stored
// counter invariant.
func WordCount(dialogue string) int {
	count := 0
	for _, block := range SplitBlocks(dialogue) {
		count += len(strings.Fields(block.Text))
	}
	return count
}

// SplitBlocks recovers per-turn structure from canonical dialogue text by
// splitting on the fixed "{speaker}\n{text}\n" template. The external query
// layer performs the same split.
func SplitBlocks(dialogue string) []Turn {
	var turns []Turn
	for _, block := range strings.Split(dialogue, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		speaker, text, found := strings.Cut(block, "\n")
		if !found {
			continue
		}
		turns = append(turns, Turn{
			Speaker: strings.TrimSpace(speaker),
			Text:    strings.TrimSpace(text),
		})
	}
	return turns
}

func splitLines(text string) []string {
	return strings.Split(text, "\n")
}
