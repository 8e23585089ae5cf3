package scanstate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// DefaultKeyPrefix namespaces the scan keys.
const DefaultKeyPrefix = "link_sweeper"

const (
	flagSuffix     = ":scanning"
	progressSuffix = ":scan_progress"
)

// Commander is the subset of the go-redis client used by Store.
type Commander interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Store is a store.TransientStore on Redis. The flag is taken with SETNX so
// two concurrent start requests cannot both win.
type Store struct {
	client      Commander
	flagKey     string
	progressKey string
}

var _ store.TransientStore = (*Store)(nil)

// NewStore creates a Store. An empty prefix selects DefaultKeyPrefix.
func NewStore(client Commander, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client:      client,
		flagKey:     prefix + flagSuffix,
		progressKey: prefix + progressSuffix,
	}
}

// AcquireScanFlag sets the flag with ttl unless it is already held.
func (s *Store) AcquireScanFlag(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.flagKey, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, domain.Persistence("acquire scan flag", err)
	}
	return ok, nil
}

// IsScanning reports whether the flag key exists.
func (s *Store) IsScanning(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.flagKey).Result()
	if err != nil {
		return false, domain.Persistence("read scan flag", err)
	}
	return n > 0, nil
}

// ReleaseScanFlag deletes the flag key.
func (s *Store) ReleaseScanFlag(ctx context.Context) error {
	if err := s.client.Del(ctx, s.flagKey).Err(); err != nil {
		return domain.Persistence("release scan flag", err)
	}
	return nil
}

// GetProgress returns the progress record, or nil when none is stored.
func (s *Store) GetProgress(ctx context.Context) (*domain.ScanProgress, error) {
	raw, err := s.client.Get(ctx, s.progressKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Persistence("read scan progress", err)
	}

	var p domain.ScanProgress
	if err = json.Unmarshal(raw, &p); err != nil {
		return nil, domain.Persistence("decode scan progress", err)
	}
	return &p, nil
}

// SetProgress stores p as JSON with ttl.
func (s *Store) SetProgress(ctx context.Context, p *domain.ScanProgress, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return domain.Persistence("encode scan progress", err)
	}
	if err = s.client.Set(ctx, s.progressKey, raw, ttl).Err(); err != nil {
		return domain.Persistence("write scan progress", err)
	}
	return nil
}

// ClearProgress deletes the progress record.
func (s *Store) ClearProgress(ctx context.Context) error {
	if err := s.client.Del(ctx, s.progressKey).Err(); err != nil {
		return domain.Persistence("clear scan progress", err)
	}
	return nil
}
