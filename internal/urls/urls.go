// Package urls extracts and classifies streaming URLs from free text.
package urls

import (
	"fmt"
	"regexp"
	"strings"
)

// Service identifies a supported streaming provider.
type Service string

const (
	ServiceYouTube   Service = "youtube"
	ServiceTwitch    Service = "twitch"
	ServiceVimeo     Service = "vimeo"
	ServiceWikipedia Service = "wikipedia"
	// ServiceGeneric covers any other well-formed http(s) URL.
	ServiceGeneric Service = "generic"
)

// ParsedURL is the result of classifying one URL.
type ParsedURL struct {
	Original   string
	Service    Service
	ContentID  string
	Normalized string
}

// Provider patterns are tried in this order; the first match wins. Each
// pattern's first capture group is the content ID.
var providerPatterns = []struct {
	service  Service
	patterns []*regexp.Regexp
}{
	{ServiceYouTube, []*regexp.Regexp{
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/live/([a-zA-Z0-9_-]{11})`),
	}},
	{ServiceTwitch, []*regexp.Regexp{
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?twitch\.tv/([a-zA-Z0-9_]+)(?:/.*)?`),
	}},
	{ServiceVimeo, []*regexp.Regexp{
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?vimeo\.com/(\d+)`),
		regexp.MustCompile(`^(?:https?://)?player\.vimeo\.com/video/(\d+)`),
	}},
	{ServiceWikipedia, []*regexp.Regexp{
		// Captures language code and article name.
		regexp.MustCompile(`^(?:https?://)?(?:([a-z]{2})\.)?wikipedia\.org/wiki/([^\s?#]+)`),
	}},
}

var (
	extractPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)
	genericPattern = regexp.MustCompile(`^https?://[^\s<>"{}|\\^` + "`" + `\[\]]+$`)
)

// Trailing punctuation that the extract pattern tends to swallow.
const trailingJunk = `.,;:!?)'">`

// Parse classifies a URL against the known providers, producing a normalized
// canonical form. Returns nil for malformed or non-http(s) input.
func Parse(raw string) *ParsedURL {
	raw = strings.TrimSpace(raw)

	for _, provider := range providerPatterns {
		for _, pattern := range provider.patterns {
			m := pattern.FindStringSubmatch(raw)
			if m == nil {
				continue
			}
			if provider.service == ServiceWikipedia {
				lang, article := m[1], m[2]
				if lang == "" {
					lang = "en"
				}
				return &ParsedURL{
					Original:   raw,
					Service:    ServiceWikipedia,
					ContentID:  article,
					Normalized: fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", lang, article),
				}
			}
			return &ParsedURL{
				Original:   raw,
				Service:    provider.service,
				ContentID:  m[1],
				Normalized: normalize(provider.service, m[1]),
			}
		}
	}

	if genericPattern.MatchString(raw) {
		return &ParsedURL{
			Original:   raw,
			Service:    ServiceGeneric,
			Normalized: raw,
		}
	}
	return nil
}

func normalize(service Service, contentID string) string {
	switch service {
	case ServiceYouTube:
		return "https://www.youtube.com/watch?v=" + contentID
	case ServiceTwitch:
		return "https://www.twitch.tv/" + contentID
	case ServiceVimeo:
		return "https://vimeo.com/" + contentID
	default:
		return contentID
	}
}

// IsSupported reports whether a URL belongs to a recognized provider
// (generic classifications don't count).
func IsSupported(raw string) bool {
	parsed := Parse(raw)
	return parsed != nil && parsed.Service != ServiceGeneric
}

// ExtractURLs returns every URL embedded in a text message, in input order,
// with trailing punctuation stripped.
func ExtractURLs(text string) []string {
	var cleaned []string
	for _, u := range extractPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, trailingJunk)
		if u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned
}
