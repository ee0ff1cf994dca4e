package extract

import (
	"strings"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// CategoryFor infers the event category from the document title and URL.
// Keyword checks run most-specific first so "press conference remarks"
// classifies as a press conference, not remarks.
func CategoryFor(title, url string) transcript.Category {
	titleLower := strings.ToLower(title)
	urlLower := strings.ToLower(url)

	switch {
	case strings.Contains(titleLower, "interview"):
		return transcript.CategoryInterview
	case strings.Contains(titleLower, "press conference") || strings.Contains(urlLower, "press-conference"):
		return transcript.CategoryPressConference
	case strings.Contains(titleLower, "press gaggle") || strings.Contains(urlLower, "press-gaggle"):
		return transcript.CategoryPressGaggle
	case strings.Contains(titleLower, "briefing"):
		return transcript.CategoryPressBriefing
	case strings.Contains(titleLower, "remarks"):
		return transcript.CategoryRemarks
	default:
		return transcript.CategorySpeech
	}
}

// TitleFromURL derives a readable title from the URL slug when the page
// carries no usable heading.
func TitleFromURL(url string) string {
	slug := url
	if idx := strings.LastIndex(slug, "/"); idx >= 0 {
		slug = slug[idx+1:]
	}
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.TrimSpace(strings.Join(words, " "))
}
