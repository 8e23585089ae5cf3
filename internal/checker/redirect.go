package checker

import (
	"errors"
	"net/http"
)

// ErrTooManyRedirects is returned when a check follows more than the allowed
// number of redirects. It is classified as a network error.
var ErrTooManyRedirects = errors.New("too many redirects")

// RedirectPolicy returns a CheckRedirect function that follows at most
// maxHops redirects. When maxHops is <= 0, redirects are not followed at all
// and the 3xx response is returned as-is.
func RedirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if maxHops <= 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}

// redirectChain returns the URLs visited before resp, oldest first.
func redirectChain(resp *http.Response) []string {
	var chain []string
	for req := resp.Request; req != nil && req.Response != nil; req = req.Response.Request {
		chain = append([]string{req.Response.Request.URL.String()}, chain...)
	}
	return chain
}
