package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// TransientStore is an in-process store.TransientStore. The scan flag is
// acquired with a compare-and-swap under the mutex.
type TransientStore struct {
	mu             sync.Mutex
	flagExpiry     time.Time
	flagSet        bool
	progress       *domain.ScanProgress
	progressExpiry time.Time
	now            func() time.Time
}

var _ store.TransientStore = (*TransientStore)(nil)

// NewTransientStore creates an empty transient store.
func NewTransientStore() *TransientStore {
	return &TransientStore{now: time.Now}
}

// WithClock replaces the time source and returns s.
func (s *TransientStore) WithClock(now func() time.Time) *TransientStore {
	s.now = now
	return s
}

// AcquireScanFlag sets the flag unless an unexpired flag is held.
func (s *TransientStore) AcquireScanFlag(_ context.Context, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flagActive() {
		return false, nil
	}
	s.flagSet = true
	s.flagExpiry = s.now().Add(ttl)
	return true, nil
}

// IsScanning reports whether an unexpired flag is held.
func (s *TransientStore) IsScanning(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagActive(), nil
}

// ReleaseScanFlag clears the flag.
func (s *TransientStore) ReleaseScanFlag(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagSet = false
	return nil
}

// GetProgress returns a copy of the unexpired progress record, or nil.
func (s *TransientStore) GetProgress(_ context.Context) (*domain.ScanProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress == nil || !s.now().Before(s.progressExpiry) {
		s.progress = nil
		return nil, nil
	}
	cp := *s.progress
	return &cp, nil
}

// SetProgress stores p for ttl.
func (s *TransientStore) SetProgress(_ context.Context, p *domain.ScanProgress, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.progress = &cp
	s.progressExpiry = s.now().Add(ttl)
	return nil
}

// ClearProgress deletes the progress record.
func (s *TransientStore) ClearProgress(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = nil
	return nil
}

func (s *TransientStore) flagActive() bool {
	return s.flagSet && s.now().Before(s.flagExpiry)
}
