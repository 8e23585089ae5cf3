// Package extractor pulls candidate URLs out of document bodies.
package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// trailingPunctuation is trimmed from both ends of bare URLs.
const trailingPunctuation = ".,;:!?"

var (
	// BareURLPattern matches http(s) tokens in running text.
	BareURLPattern = regexp.MustCompile("(?i)\\bhttps?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

	// CodeBlockPattern matches <pre> and <code> elements including their bodies.
	CodeBlockPattern = regexp.MustCompile(`(?is)<pre\b[^>]*>.*?</pre>|<code\b[^>]*>.*?</code>`)

	anchorPattern    = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a>`)
	schemePattern    = regexp.MustCompile(`(?i)^https?://`)
	localHostPattern = regexp.MustCompile(
		`(?i)^https?://(localhost|127\.0\.0\.1|192\.168\.|10\.|172\.(1[6-9]|2[0-9]|3[01])\.)`,
	)
)

// Candidate is a URL found in content with the context it was found in.
type Candidate struct {
	URL     string
	Context domain.OccurrenceContext
}

// Extract returns href candidates in document order followed by bare URL
// candidates in text order. href values are entity-decoded, so the recorded
// URL is the one a browser would request. Bare URLs inside anchors and code
// blocks are skipped. Duplicates across the two passes are kept.
func Extract(content string) []Candidate {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	candidates := extractHrefs(content)

	text := CodeBlockPattern.ReplaceAllString(content, " ")
	text = anchorPattern.ReplaceAllString(text, " ")

	for _, match := range BareURLPattern.FindAllString(text, -1) {
		candidate := strings.Trim(match, trailingPunctuation)
		if IsValidURL(candidate) {
			candidates = append(candidates, Candidate{URL: candidate, Context: domain.ContextPlain})
		}
	}

	return candidates
}

func extractHrefs(content string) []Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var candidates []Candidate
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if IsValidURL(href) {
			candidates = append(candidates, Candidate{URL: href, Context: domain.ContextHref})
		}
	})

	return candidates
}

// IsValidURL accepts absolute http(s) URLs with a host that do not point at
// localhost or a private network range.
func IsValidURL(raw string) bool {
	if !schemePattern.MatchString(raw) {
		return false
	}
	if localHostPattern.MatchString(raw) {
		return false
	}
	if strings.HasPrefix(raw, "//") {
		return false
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return parsed.Host != ""
}
