// Package normalize canonicalizes URLs so that equivalent spellings of the
// same link share one dedup key in the link store.
package normalize

import (
	"net/url"
	"strings"
)

// defaultPorts maps schemes to their default port strings.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

const trackingPrefix = "utm_"

// Options controls the optional normalization steps.
type Options struct {
	// RemoveUTM drops query parameters whose key starts with "utm_".
	RemoveUTM bool
	// IgnoreFragment drops the "#fragment" part.
	IgnoreFragment bool
}

// DefaultOptions strips utm_* parameters and fragments.
func DefaultOptions() Options {
	return Options{RemoveUTM: true, IgnoreFragment: true}
}

// Normalizer applies a fixed set of Options. It is stateless and safe for
// concurrent use.
type Normalizer struct {
	opts Options
}

// New returns a Normalizer using opts.
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Normalize returns the canonical form of rawURL.
func (n *Normalizer) Normalize(rawURL string) string {
	return NormalizeURL(rawURL, n.opts)
}

// NormalizeURL trims rawURL, lowercases scheme and host, removes the scheme's
// default port, strips a single trailing slash from the path (an empty path
// becomes "/"), and applies the optional query and fragment rules. Input that
// does not parse into a URL with a scheme and host is returned unchanged.
func NormalizeURL(rawURL string, opts Options) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return rawURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return rawURL
	}

	scheme := strings.ToLower(parsed.Scheme)

	var b strings.Builder
	b.Grow(len(trimmed))
	b.WriteString(scheme)
	b.WriteString("://")
	if parsed.User != nil {
		b.WriteString(parsed.User.String())
		b.WriteByte('@')
	}
	b.WriteString(normalizeHost(parsed, scheme))
	b.WriteString(normalizePath(parsed.EscapedPath()))

	query := parsed.RawQuery
	if opts.RemoveUTM {
		query = stripTrackingParams(query)
	}
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}

	if !opts.IgnoreFragment && parsed.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(parsed.EscapedFragment())
	}

	return b.String()
}

// normalizeHost lowercases the hostname and removes the default port for scheme.
func normalizeHost(u *url.URL, scheme string) string {
	hostname := strings.ToLower(u.Hostname())
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	port := u.Port()
	if port == "" || defaultPorts[scheme] == port {
		return hostname
	}

	return hostname + ":" + port
}

// normalizePath removes one trailing slash while preserving the root "/".
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}

	return strings.TrimSuffix(p, "/")
}

// stripTrackingParams removes utm_* pairs from a raw query, keeping the
// remaining pairs in their original order and encoding.
func stripTrackingParams(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]

	for _, pair := range pairs {
		if pair == "" {
			continue
		}

		key, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}

		if strings.HasPrefix(strings.ToLower(key), trackingPrefix) {
			continue
		}

		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}
