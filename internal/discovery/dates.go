package discovery

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	monthSlugRe = regexp.MustCompile(`(?i)(january|february|march|april|may|june|july|august|september|october|november|december)-(\d{1,2})-(\d{4})`)
	isoSlugRe   = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// DateFromURL extracts the event date embedded in a document URL slug.
// Slugs carry either a spelled-out month ("...-january-7-2025") or an ISO
// date ("...-2025-01-07"). Listings are newest first, so these dates drive
// the window cutoff during discovery.
func DateFromURL(rawURL string) (time.Time, bool) {
	if m := monthSlugRe.FindStringSubmatch(rawURL); m != nil {
		month, ok := months[strings.ToLower(m[1])]
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if day < 1 || day > 31 {
			return time.Time{}, false
		}
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	}
	if m := isoSlugRe.FindStringSubmatch(rawURL); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}
