package scanner

import (
	"context"
	"sync"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/checker"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// LinkChecker probes URLs.
type LinkChecker interface {
	Check(ctx context.Context, rawURL string) domain.CheckResult
	CheckBatch(ctx context.Context, urls []string) map[string]domain.CheckResult
}

// CheckerFactory builds a LinkChecker for a checker configuration.
type CheckerFactory func(cfg checker.Config) LinkChecker

// checkerCache hands out one checker per configuration so the rate limiter
// is shared across batches until the settings change.
type checkerCache struct {
	mu      sync.Mutex
	factory CheckerFactory
	cfg     checker.Config
	current LinkChecker
}

func newCheckerCache(factory CheckerFactory) *checkerCache {
	return &checkerCache{factory: factory}
}

func (c *checkerCache) get(cfg checker.Config) LinkChecker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.cfg != cfg {
		c.current = c.factory(cfg)
		c.cfg = cfg
	}
	return c.current
}
