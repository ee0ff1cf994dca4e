// Package normalize cleans raw dialogue turns into canonical transcript text.
// Its rule set is shared by the normalizer (removal + per-category stats) and
// the record store's corruption-signature check, so both always agree on what
// counts as an artifact.
package normalize

import "regexp"

// Action describes what a rule does when its pattern matches.
type Action int

// Rule actions.
const (
	// DropLine removes the whole matching line from the body.
	DropLine Action = iota
	// StripInline removes only the matched substring.
	StripInline
)

// Removal categories reported in Stats and by Signature.
const (
	CategoryTimestamp     = "timestamp"
	CategoryRating        = "rating"
	CategoryBoilerplate   = "boilerplate"
	CategoryAnnotation    = "annotation"
	CategorySpeakerSuffix = "speaker_suffix"
)

// Rule is one declarative artifact recognizer.
type Rule struct {
	Category string
	Action   Action
	Pattern  *regexp.Regexp
}

// Matches reports whether the rule fires on the given line.
func (r Rule) Matches(line string) bool {
	return r.Pattern.MatchString(line)
}

var (
	// timestampRangeRe matches source-injected timing lines such as
	// "00:00-00:00:10 (10 sec)" or "04:46-00:04:50".
	timestampRangeRe = regexp.MustCompile(`^\d{1,2}:\d{2}-\d{1,2}:\d{2}(?::\d{2})?(?:\s*\(\d+\s*(?:sec|min)s?\))?\s*$`)

	// ratingLabelRe matches confidence/rating lines like "NO STRESSLENS:" or
	// "NO SIGNAL (0.125):". The vocabulary is fixed by the source.
	ratingLabelRe = regexp.MustCompile(`^(?:NO STRESSLENS|NO SIGNAL|WEAK|MEDIUM|STRONG|HIGH)(?:\s*\([0-9.]+\))?:\s*$`)

	// annotationRe matches bracketed non-speech events, e.g. "[Laughter]" or
	// [Audience members call out "We love you"]. Only bracketed text is
	// removed so substantive quoted content survives.
	annotationRe = regexp.MustCompile(`\s*\[[^\[\]]*\]`)

	// suffixedSpeakerRe matches a speaker heading the source left a bare
	// numeric disambiguation suffix on, e.g. "Donald Trump 00". A clean
	// heading never ends in digits, so this doubles as the corruption
	// signature for un-normalized speaker labels.
	suffixedSpeakerRe = regexp.MustCompile(`^[A-Z][a-zA-Z.'\- ]+ \d{1,2}$`)

	boilerplateRes = []*regexp.Regexp{
		regexp.MustCompile(`StressLens`),
		regexp.MustCompile(`\d+\s+Topics\s+\d+\s+Entities`),
		regexp.MustCompile(`Full Transcript:`),
		regexp.MustCompile(`CAPITOL HILL SINCE`),
		regexp.MustCompile(`About Contact Us`),
		regexp.MustCompile(`CQ and Roll Call`),
		regexp.MustCompile(`FiscalNote`),
	}
)

// DefaultRules returns the ordered artifact rule set. Order matters: line
// rules run before the inline annotation rule so a line that is pure
// annotation is dropped whole rather than left as an empty shell.
func DefaultRules() []Rule {
	rules := []Rule{
		{Category: CategoryTimestamp, Action: DropLine, Pattern: timestampRangeRe},
		{Category: CategoryRating, Action: DropLine, Pattern: ratingLabelRe},
		{Category: CategorySpeakerSuffix, Action: DropLine, Pattern: suffixedSpeakerRe},
	}
	for _, re := range boilerplateRes {
		rules = append(rules, Rule{Category: CategoryBoilerplate, Action: DropLine, Pattern: re})
	}
	rules = append(rules, Rule{Category: CategoryAnnotation, Action: StripInline, Pattern: annotationRe})
	return rules
}

// Signature runs the artifact matchers against already-stored canonical text
// and returns the categories that fire. A non-empty result means the stored
// record was produced by a buggy or older normalizer and must be re-derived.
func Signature(rules []Rule, text string) []string {
	if text == "" {
		return nil
	}
	seen := map[string]bool{}
	var cats []string
	record := func(cat string) {
		if !seen[cat] {
			seen[cat] = true
			cats = append(cats, cat)
		}
	}
	for _, line := range splitLines(text) {
		for _, rule := range rules {
			switch rule.Action {
			case DropLine:
				if rule.Matches(line) {
					record(rule.Category)
				}
			case StripInline:
				if rule.Pattern.MatchString(line) {
					record(rule.Category)
				}
			}
		}
	}
	return cats
}
