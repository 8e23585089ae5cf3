package replacer

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/extractor"
)

const trailingPunctuation = ".,;:!?"

var (
	hrefPattern        = regexp.MustCompile(`(?is)(<a\b[^>]*?\bhref\s*=\s*)(?:"([^"]*)"|'([^']*)')`)
	placeholderPattern = regexp.MustCompile("<\x00(\\d+)\x00>")
)

// Substitute rewrites find to replace in content. Code blocks are never
// touched, anchor href values are rewritten first, then bare URLs in the
// remaining text. Matching is case-insensitive.
//
// For equals, starts_with and ends_with the match is against whole URL
// tokens (an href value or a bare URL): equals swaps the token, starts_with
// and ends_with swap the matched prefix or suffix. For contains every
// occurrence of find is swapped, bounded by word boundaries where find
// begins or ends with a word character.
func Substitute(content, find, replace string, matchType domain.MatchType) string {
	if find == "" || content == "" {
		return content
	}

	m := newMatcher(find, replace, matchType)
	p := &protector{}

	out := extractor.CodeBlockPattern.ReplaceAllStringFunc(content, p.stash)

	out = hrefPattern.ReplaceAllStringFunc(out, func(attr string) string {
		groups := hrefPattern.FindStringSubmatch(attr)
		quote, value := `"`, groups[2]
		if strings.HasPrefix(attr[len(groups[1]):], "'") {
			quote, value = "'", groups[3]
		}
		return p.stash(groups[1] + quote + m.rewriteAttr(value, quote) + quote)
	})

	if m.contains != nil {
		out = m.contains.ReplaceAllLiteralString(out, replace)
	} else {
		out = extractor.BareURLPattern.ReplaceAllStringFunc(out, func(match string) string {
			token := strings.TrimRight(match, trailingPunctuation)
			return m.rewriteToken(token) + match[len(token):]
		})
	}

	return p.restore(out)
}

// Matches reports whether s matches find under matchType, case-insensitively.
// s is treated as a single token.
func Matches(s, find string, matchType domain.MatchType) bool {
	if find == "" {
		return false
	}
	switch matchType {
	case domain.MatchEquals:
		return strings.EqualFold(s, find)
	case domain.MatchStartsWith:
		return hasPrefixFold(s, find)
	case domain.MatchEndsWith:
		return hasSuffixFold(s, find)
	default:
		return strings.Contains(strings.ToLower(s), strings.ToLower(find))
	}
}

type matcher struct {
	find      string
	replace   string
	matchType domain.MatchType
	contains  *regexp.Regexp
}

func newMatcher(find, replace string, matchType domain.MatchType) *matcher {
	m := &matcher{find: find, replace: replace, matchType: matchType}
	if matchType != domain.MatchEquals && matchType != domain.MatchStartsWith && matchType != domain.MatchEndsWith {
		m.contains = containsPattern(find)
	}
	return m
}

func (m *matcher) rewriteToken(token string) string {
	switch {
	case m.contains != nil:
		return m.contains.ReplaceAllLiteralString(token, m.replace)
	case m.matchType == domain.MatchEquals && strings.EqualFold(token, m.find):
		return m.replace
	case m.matchType == domain.MatchStartsWith && hasPrefixFold(token, m.find):
		return m.replace + token[len(m.find):]
	case m.matchType == domain.MatchEndsWith && hasSuffixFold(token, m.find):
		return token[:len(token)-len(m.find)] + m.replace
	default:
		return token
	}
}

// rewriteAttr matches the entity-decoded href value, since that is the URL
// the extractor recorded, and re-encodes the result when the value was
// encoded.
func (m *matcher) rewriteAttr(value, quote string) string {
	decoded := html.UnescapeString(value)
	if decoded == value {
		return m.rewriteToken(value)
	}
	rewritten := m.rewriteToken(decoded)
	if rewritten == decoded {
		return value
	}
	return EncodeAttr(rewritten, quote)
}

// EncodeAttr escapes ampersands and the enclosing quote of an attribute value.
func EncodeAttr(value, quote string) string {
	entity := "&quot;"
	if quote == "'" {
		entity = "&#39;"
	}
	return strings.NewReplacer("&", "&amp;", quote, entity).Replace(value)
}

func containsPattern(find string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)")
	if first, _ := utf8.DecodeRuneInString(find); isWordRune(first) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(find))
	if last, _ := utf8.DecodeLastRuneInString(find); isWordRune(last) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// protector swaps regions for placeholders that no URL pattern can match and
// puts them back afterwards.
type protector struct {
	blocks []string
}

func (p *protector) stash(s string) string {
	p.blocks = append(p.blocks, s)
	return fmt.Sprintf("<\x00%d\x00>", len(p.blocks)-1)
}

func (p *protector) restore(s string) string {
	// later blocks can enclose earlier placeholders
	for range len(p.blocks) + 1 {
		if !placeholderPattern.MatchString(s) {
			break
		}
		s = placeholderPattern.ReplaceAllStringFunc(s, func(ph string) string {
			idx, err := strconv.Atoi(placeholderPattern.FindStringSubmatch(ph)[1])
			if err != nil || idx >= len(p.blocks) {
				return ph
			}
			return p.blocks[idx]
		})
	}
	return s
}
