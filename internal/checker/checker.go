// Package checker probes URLs over HTTP and classifies the outcome.
package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

// Defaults applied by New when a Config field is zero.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "LinkSweeper/1.0"
)

// Status code boundaries used for classification.
const (
	statusOKLow      = 200
	statusBrokenLow  = 400
	maxDrainedBodyKB = 64
)

// Recorder receives one observation per completed check.
type Recorder interface {
	ObserveCheck(status string, duration time.Duration)
}

// Config configures a Checker.
type Config struct {
	RequestsPerSecond int
	Timeout           time.Duration
	UserAgent         string
	MaxRedirects      int
	// Concurrency bounds parallel checks in CheckBatch. Values <= 1 check sequentially.
	Concurrency int
}

// Option customizes a Checker.
type Option func(*Checker)

// WithTransport replaces the HTTP transport used for probes.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Checker) {
		c.client.Transport = rt
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Checker) {
		c.log = log
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Checker) {
		c.recorder = r
	}
}

// WithLimiter shares an existing limiter instead of creating one from Config.
func WithLimiter(l *Limiter) Option {
	return func(c *Checker) {
		c.limiter = l
	}
}

// Checker issues HEAD-then-GET probes through a shared rate limiter.
type Checker struct {
	client      *http.Client
	limiter     *Limiter
	userAgent   string
	concurrency int
	log         logger.Logger
	recorder    Recorder
}

// New creates a Checker from cfg.
func New(cfg Config, opts ...Option) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	c := &Checker{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			CheckRedirect: RedirectPolicy(cfg.MaxRedirects),
		},
		limiter:     NewLimiter(cfg.RequestsPerSecond),
		userAgent:   cfg.UserAgent,
		concurrency: cfg.Concurrency,
		log:         logger.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Check probes rawURL once. Transport failures are reported in the result,
// never as an error.
func (c *Checker) Check(ctx context.Context, rawURL string) domain.CheckResult {
	result := domain.CheckResult{
		Status:   domain.LinkStatusError,
		FinalURL: rawURL,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return c.failed(result, err, 0)
	}

	start := time.Now()

	resp, err := c.do(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode >= statusBrokenLow {
		if resp != nil {
			closeBody(resp)
		}
		resp, err = c.do(ctx, http.MethodGet, rawURL)
	}

	elapsed := time.Since(start)
	result.ResponseTimeMS = int(elapsed.Milliseconds())

	if err != nil {
		return c.failed(result, err, elapsed)
	}
	defer closeBody(resp)

	code := resp.StatusCode
	result.Code = &code
	result.Status = statusForCode(code)
	result.RedirectCount = len(redirectChain(resp))
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}

	c.observe(result.Status, elapsed)

	return result
}

// Aborted reports whether res is a failure caused by ctx ending rather than
// by the link itself. Such results must not be recorded.
func Aborted(ctx context.Context, res domain.CheckResult) bool {
	return ctx.Err() != nil && res.Code == nil
}

// CheckBatch checks every URL and returns results keyed by URL. URLs not yet
// started when ctx is cancelled, and checks cut short by the cancellation,
// are absent from the map.
func (c *Checker) CheckBatch(ctx context.Context, urls []string) map[string]domain.CheckResult {
	results := make(map[string]domain.CheckResult, len(urls))

	if c.concurrency <= 1 {
		for _, u := range urls {
			if ctx.Err() != nil {
				break
			}
			if res := c.Check(ctx, u); !Aborted(ctx, res) {
				results[u] = res
			}
		}
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, u := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := c.Check(gctx, u)
			if Aborted(gctx, res) {
				return nil
			}
			mu.Lock()
			results[u] = res
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors.
	_ = g.Wait()

	return results
}

func (c *Checker) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	return c.client.Do(req)
}

func (c *Checker) failed(result domain.CheckResult, err error, elapsed time.Duration) domain.CheckResult {
	kind := ClassifyError(err)
	result.Status = domain.LinkStatusError
	result.Code = nil
	result.ErrorKind = &kind
	result.ErrorMessage = err.Error()

	c.log.Debug("Link check failed",
		logger.String("url", result.FinalURL),
		logger.String("error_kind", string(kind)),
		logger.Error(err),
	)
	c.observe(result.Status, elapsed)

	return result
}

func (c *Checker) observe(status domain.LinkStatus, elapsed time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveCheck(string(status), elapsed)
	}
}

func statusForCode(code int) domain.LinkStatus {
	switch {
	case code >= statusOKLow && code < statusBrokenLow:
		return domain.LinkStatusOK
	case code >= statusBrokenLow:
		return domain.LinkStatusBroken
	default:
		return domain.LinkStatusUnknown
	}
}

// closeBody drains a bounded amount of the body so the connection can be reused.
func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedBodyKB*1024))
	_ = resp.Body.Close()
}
