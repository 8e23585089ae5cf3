package domain

import (
	"strings"
	"time"
)

// MatchType governs substring matching for replacements and rules.
type MatchType string

// Match types.
const (
	MatchContains   MatchType = "contains"
	MatchEquals     MatchType = "equals"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
)

// ParseMatchType returns the match type for s, defaulting to contains.
func ParseMatchType(s string) MatchType {
	switch MatchType(strings.ToLower(strings.TrimSpace(s))) {
	case MatchEquals:
		return MatchEquals
	case MatchStartsWith:
		return MatchStartsWith
	case MatchEndsWith:
		return MatchEndsWith
	default:
		return MatchContains
	}
}

// Rule is a stored pattern to replacement mapping for automatic link repair.
type Rule struct {
	ID          string    `json:"id"`
	Pattern     string    `json:"pattern"`
	Replacement string    `json:"replacement"`
	MatchType   MatchType `json:"match_type"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// RuleUpdate carries the optional fields of a rule update.
type RuleUpdate struct {
	Pattern     *string    `json:"pattern"`
	Replacement *string    `json:"replacement"`
	MatchType   *MatchType `json:"match_type"`
	Enabled     *bool      `json:"enabled"`
}
