// Package api exposes the link sweeper operations over HTTP with gin.
package api

import (
	"context"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/rules"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/settings"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
)

// Scanner is the scan orchestrator surface.
type Scanner interface {
	StartScan(ctx context.Context) (int, error)
	ScanDocumentsBatch(ctx context.Context, offset int) (domain.DocumentBatchResult, error)
	CheckURLsBatch(ctx context.Context) (domain.URLBatchResult, error)
	CompleteScan(ctx context.Context) (domain.LinkStats, error)
	StopScan(ctx context.Context) error
	Status(ctx context.Context) (domain.ScanStatus, error)
	Stats(ctx context.Context) (domain.LinkStats, error)
	RecheckLink(ctx context.Context, id int64) (*domain.Link, error)
	IgnoreLink(ctx context.Context, id int64) error
}

// LinkLister pages through link reports.
type LinkLister interface {
	ListLinks(ctx context.Context, filter store.LinkFilter, page store.Page) ([]domain.LinkReport, error)
	CountLinks(ctx context.Context, filter store.LinkFilter) (int, error)
}

// Replacer previews, executes and undoes replacements.
type Replacer interface {
	Preview(ctx context.Context, args replacer.Args) (replacer.Preview, error)
	Execute(ctx context.Context, args replacer.Args) (replacer.ExecuteResult, error)
	Undo(ctx context.Context) (replacer.UndoResult, error)
	Operations(ctx context.Context, limit int) ([]domain.Operation, error)
}

// RuleService manages replacement rules.
type RuleService interface {
	List(ctx context.Context) ([]domain.Rule, error)
	Get(ctx context.Context, id string) (*domain.Rule, error)
	Add(ctx context.Context, rule domain.Rule) (*domain.Rule, error)
	Update(ctx context.Context, id string, upd domain.RuleUpdate) (*domain.Rule, error)
	Toggle(ctx context.Context, id string) (*domain.Rule, error)
	Delete(ctx context.Context, id string) error
	Apply(ctx context.Context, dryRun bool) (rules.ApplyResult, error)
}

// Exporter builds export tables.
type Exporter interface {
	Links(ctx context.Context, filter store.LinkFilter) (exporter.Table, error)
	Stats(ctx context.Context) (exporter.Table, error)
}

// SettingsService reads and writes runtime settings.
type SettingsService interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, next settings.Settings) (settings.Settings, error)
}

// Config wires a Handler.
type Config struct {
	Scanner  Scanner
	Links    LinkLister
	Replacer Replacer
	Rules    RuleService
	Exporter Exporter
	Settings SettingsService
	Logger   logger.Logger
}

// Handler serves the /api/v1 routes.
type Handler struct {
	scanner  Scanner
	links    LinkLister
	replacer Replacer
	rules    RuleService
	exporter Exporter
	settings SettingsService
	log      logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Handler{
		scanner:  cfg.Scanner,
		links:    cfg.Links,
		replacer: cfg.Replacer,
		rules:    cfg.Rules,
		exporter: cfg.Exporter,
		settings: cfg.Settings,
		log:      cfg.Logger,
	}
}
