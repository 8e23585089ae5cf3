// Package rules stores pattern to replacement rules and applies them to
// broken links through the replace engine.
package rules

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// Key is the key-value store key holding the ordered rule list.
const Key = "rules"

// LinkLister lists link reports.
type LinkLister interface {
	ListLinks(ctx context.Context, filter store.LinkFilter, page store.Page) ([]domain.LinkReport, error)
}

// Executor runs a replacement.
type Executor interface {
	Execute(ctx context.Context, args replacer.Args) (replacer.ExecuteResult, error)
}

// Replacement is a planned rewrite of one broken link.
type Replacement struct {
	LinkID int64  `json:"link_id"`
	OldURL string `json:"old_url"`
	NewURL string `json:"new_url"`
	RuleID string `json:"rule_id"`
}

// ApplyResult is the outcome of Apply. ReplacedCount is nil on a dry run.
type ApplyResult struct {
	DryRun        bool          `json:"dry_run"`
	MatchedCount  int           `json:"matched_count"`
	Replacements  []Replacement `json:"replacements"`
	ReplacedCount *int          `json:"replaced_count,omitempty"`
	Message       string        `json:"message"`
}

// Config wires a Service.
type Config struct {
	Store    store.KeyValueStore
	Links    LinkLister
	Replacer Executor
	Logger   logger.Logger
	Now      func() time.Time
	NewID    func() string
}

// Service manages the rule list.
type Service struct {
	// mu serializes read-modify-write cycles on the stored list.
	mu       sync.Mutex
	kv       store.KeyValueStore
	links    LinkLister
	replacer Executor
	log      logger.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	return &Service{
		kv:       cfg.Store,
		links:    cfg.Links,
		replacer: cfg.Replacer,
		log:      cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
}

// List returns every rule in stored order.
func (s *Service) List(ctx context.Context) ([]domain.Rule, error) {
	return s.load(ctx)
}

// Get returns the rule with id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Rule, error) {
	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return nil, domain.NotFoundf("rule %s", id)
	}
	rule := list[idx]
	return &rule, nil
}

// Add validates rule, assigns its id and creation time and appends it.
func (s *Service) Add(ctx context.Context, rule domain.Rule) (*domain.Rule, error) {
	rule.MatchType = domain.ParseMatchType(string(rule.MatchType))
	if err := Validate(rule); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	rule.ID = s.newID()
	rule.CreatedAt = s.now().UTC()
	list = append(list, rule)

	if err = s.save(ctx, list); err != nil {
		return nil, err
	}

	s.log.Info("Rule added", logger.String("rule_id", rule.ID), logger.String("pattern", rule.Pattern))
	return &rule, nil
}

// Update merges the set fields of upd into the rule and re-validates it.
func (s *Service) Update(ctx context.Context, id string, upd domain.RuleUpdate) (*domain.Rule, error) {
	return s.modify(ctx, id, func(rule *domain.Rule) {
		if upd.Pattern != nil {
			rule.Pattern = *upd.Pattern
		}
		if upd.Replacement != nil {
			rule.Replacement = *upd.Replacement
		}
		if upd.MatchType != nil {
			rule.MatchType = domain.ParseMatchType(string(*upd.MatchType))
		}
		if upd.Enabled != nil {
			rule.Enabled = *upd.Enabled
		}
	})
}

// Toggle flips the rule's enabled flag.
func (s *Service) Toggle(ctx context.Context, id string) (*domain.Rule, error) {
	return s.modify(ctx, id, func(rule *domain.Rule) {
		rule.Enabled = !rule.Enabled
	})
}

// Delete removes the rule with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return domain.NotFoundf("rule %s", id)
	}

	list = append(list[:idx], list[idx+1:]...)
	if err = s.save(ctx, list); err != nil {
		return err
	}

	s.log.Info("Rule deleted", logger.String("rule_id", id))
	return nil
}

// Apply evaluates enabled rules in order against every broken link; the
// first matching rule wins. A dry run only reports the planned
// replacements. Otherwise each one is executed as its own replace operation
// with match type equals.
func (s *Service) Apply(ctx context.Context, dryRun bool) (ApplyResult, error) {
	result := ApplyResult{DryRun: dryRun, Replacements: []Replacement{}}

	list, err := s.load(ctx)
	if err != nil {
		return result, err
	}
	active := make([]domain.Rule, 0, len(list))
	for _, r := range list {
		if r.Enabled {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		result.Message = "No active rules to apply."
		return result, nil
	}

	broken, err := s.links.ListLinks(ctx, store.LinkFilter{Status: store.StatusBroken}, store.AllRows())
	if err != nil {
		return result, err
	}

	for i := range broken {
		if r, ok := firstMatch(active, broken[i].RawURL); ok {
			result.Replacements = append(result.Replacements, Replacement{
				LinkID: broken[i].ID,
				OldURL: broken[i].RawURL,
				NewURL: ReplacementURL(broken[i].RawURL, r.Pattern, r.Replacement),
				RuleID: r.ID,
			})
		}
	}
	result.MatchedCount = len(result.Replacements)

	if dryRun {
		result.Message = fmt.Sprintf("%d links would be replaced.", result.MatchedCount)
		return result, nil
	}

	replaced := 0
	result.ReplacedCount = &replaced
	for _, rep := range result.Replacements {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		_, execErr := s.replacer.Execute(ctx, replacer.Args{
			Find:      rep.OldURL,
			Replace:   rep.NewURL,
			MatchType: domain.MatchEquals,
		})
		if execErr != nil {
			if errors.Is(execErr, domain.ErrValidation) {
				s.log.Info("Rule replacement skipped",
					logger.String("rule_id", rep.RuleID),
					logger.String("url", rep.OldURL),
					logger.Error(execErr),
				)
				continue
			}
			return result, execErr
		}
		replaced++
	}

	result.Message = fmt.Sprintf("Successfully replaced %d links using rules.", replaced)
	s.log.Info("Rules applied",
		logger.Int("matched", result.MatchedCount),
		logger.Int("replaced", replaced),
	)
	return result, nil
}

// Validate checks that pattern and replacement are set and that the
// replacement is an absolute URL.
func Validate(rule domain.Rule) error {
	if strings.TrimSpace(rule.Pattern) == "" {
		return domain.Validationf("pattern is required")
	}
	if strings.TrimSpace(rule.Replacement) == "" {
		return domain.Validationf("replacement URL is required")
	}
	u, err := url.Parse(rule.Replacement)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return domain.Validationf("replacement must be a valid URL")
	}
	return nil
}

func (s *Service) modify(ctx context.Context, id string, apply func(*domain.Rule)) (*domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return nil, domain.NotFoundf("rule %s", id)
	}

	rule := list[idx]
	apply(&rule)
	if err = Validate(rule); err != nil {
		return nil, err
	}
	list[idx] = rule

	if err = s.save(ctx, list); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *Service) load(ctx context.Context) ([]domain.Rule, error) {
	var list []domain.Rule
	if _, err := s.kv.Get(ctx, Key, &list); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if list == nil {
		list = []domain.Rule{}
	}
	return list, nil
}

func (s *Service) save(ctx context.Context, list []domain.Rule) error {
	if err := s.kv.Set(ctx, Key, list); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

func firstMatch(active []domain.Rule, rawURL string) (domain.Rule, bool) {
	for _, r := range active {
		if MatchesURL(rawURL, r.Pattern, r.MatchType) {
			return r, true
		}
	}
	return domain.Rule{}, false
}

func indexOf(list []domain.Rule, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
