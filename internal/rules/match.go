package rules

import (
	"regexp"
	"strings"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
)

const wildcard = "*"

// MatchesURL reports whether rawURL matches the rule pattern. A pattern with
// a "*" is compiled to an anchored, case-insensitive regular expression with
// "*" matching any run of characters. Other patterns use matchType.
func MatchesURL(rawURL, pattern string, matchType domain.MatchType) bool {
	if strings.Contains(pattern, wildcard) {
		return wildcardPattern(pattern).MatchString(rawURL)
	}
	return replacer.Matches(rawURL, pattern, matchType)
}

// ReplacementURL computes the URL a matched link is rewritten to. When the
// pattern and the replacement each hold exactly one "*", the text after the
// pattern's literal prefix is carried into the replacement's slot. Otherwise
// every case-insensitive occurrence of the pattern is swapped for the
// replacement.
func ReplacementURL(rawURL, pattern, replacement string) string {
	if strings.Count(pattern, wildcard) == 1 && strings.Count(replacement, wildcard) == 1 {
		prefix, _, _ := strings.Cut(pattern, wildcard)
		head, tail, _ := strings.Cut(replacement, wildcard)
		if idx := indexFold(rawURL, prefix); idx >= 0 {
			return head + rawURL[idx+len(prefix):] + tail
		}
	}
	if pattern == "" {
		return rawURL
	}
	return regexp.MustCompile("(?i)"+regexp.QuoteMeta(pattern)).ReplaceAllLiteralString(rawURL, replacement)
}

func wildcardPattern(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, wildcard)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?is)^" + strings.Join(parts, ".*") + "$")
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}
