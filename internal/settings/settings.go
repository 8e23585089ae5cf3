// Package settings provides the runtime sweeper settings stored in the
// key-value store and seeded from the YAML configuration.
package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/checker"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/config"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/normalize"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// Key is the key-value store key holding the settings document.
const Key = "settings"

const maxBatchSize = 500

// Settings are the tunables read on every scan and check batch.
type Settings struct {
	RequestsPerSecond       int      `json:"requests_per_second"`
	RequestTimeoutSeconds   int      `json:"request_timeout_seconds"`
	UserAgent               string   `json:"user_agent"`
	ScanDocumentTypes       []string `json:"scan_document_types"`
	NormalizeRemoveUTM      bool     `json:"normalize_remove_utm"`
	NormalizeIgnoreFragment bool     `json:"normalize_ignore_fragment"`
	BatchSizeDocuments      int      `json:"batch_size_documents"`
	BatchSizeURLs           int      `json:"batch_size_urls"`
}

// FromConfig converts the sweeper section of the configuration. Defaults have
// already been applied by config.Load.
func FromConfig(c config.SweeperConfig) Settings {
	s := Settings{
		RequestsPerSecond:     c.RequestsPerSecond,
		RequestTimeoutSeconds: c.RequestTimeoutSeconds,
		UserAgent:             c.UserAgent,
		ScanDocumentTypes:     append([]string(nil), c.ScanDocumentTypes...),
		BatchSizeDocuments:    c.BatchSizeDocuments,
		BatchSizeURLs:         c.BatchSizeURLs,
	}
	if c.NormalizeRemoveUTM != nil {
		s.NormalizeRemoveUTM = *c.NormalizeRemoveUTM
	}
	if c.NormalizeIgnoreFragment != nil {
		s.NormalizeIgnoreFragment = *c.NormalizeIgnoreFragment
	}
	return s
}

// Validate reports the first invalid field as a validation error. A
// RequestsPerSecond of zero or less is valid and disables rate limiting.
func (s Settings) Validate() error {
	if s.RequestTimeoutSeconds <= 0 {
		return domain.Validationf("request_timeout_seconds must be positive")
	}
	if strings.TrimSpace(s.UserAgent) == "" {
		return domain.Validationf("user_agent is required")
	}
	if len(s.ScanDocumentTypes) == 0 {
		return domain.Validationf("scan_document_types must not be empty")
	}
	for _, t := range s.ScanDocumentTypes {
		if strings.TrimSpace(t) == "" {
			return domain.Validationf("scan_document_types contains an empty type")
		}
	}
	if s.BatchSizeDocuments <= 0 || s.BatchSizeDocuments > maxBatchSize {
		return domain.Validationf("batch_size_documents must be between 1 and %d", maxBatchSize)
	}
	if s.BatchSizeURLs <= 0 || s.BatchSizeURLs > maxBatchSize {
		return domain.Validationf("batch_size_urls must be between 1 and %d", maxBatchSize)
	}
	return nil
}

// NormalizeOptions returns the normalizer options selected by s.
func (s Settings) NormalizeOptions() normalize.Options {
	return normalize.Options{
		RemoveUTM:      s.NormalizeRemoveUTM,
		IgnoreFragment: s.NormalizeIgnoreFragment,
	}
}

// CheckerConfig returns the link checker configuration selected by s.
func (s Settings) CheckerConfig() checker.Config {
	return checker.Config{
		RequestsPerSecond: s.RequestsPerSecond,
		Timeout:           time.Duration(s.RequestTimeoutSeconds) * time.Second,
		UserAgent:         s.UserAgent,
	}
}

// Service reads and writes Settings in a key-value store.
type Service struct {
	kv       store.KeyValueStore
	defaults Settings
}

// NewService creates a Service that falls back to defaults for any field not
// yet stored.
func NewService(kv store.KeyValueStore, defaults Settings) *Service {
	return &Service{kv: kv, defaults: defaults}
}

// Get returns the stored settings layered over the defaults.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	current := s.defaults
	current.ScanDocumentTypes = append([]string(nil), s.defaults.ScanDocumentTypes...)

	if _, err := s.kv.Get(ctx, Key, &current); err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return current, nil
}

// Update validates and stores next.
func (s *Service) Update(ctx context.Context, next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.kv.Set(ctx, Key, next); err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return next, nil
}

// Seed stores the defaults when no settings exist yet.
func (s *Service) Seed(ctx context.Context) error {
	var existing Settings
	found, err := s.kv.Get(ctx, Key, &existing)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if found {
		return nil
	}
	if err = s.kv.Set(ctx, Key, s.defaults); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}
