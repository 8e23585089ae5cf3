package bootstrap

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/checker"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/config"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/exporter"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/replacer"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/rules"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/scanner"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/settings"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/store"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/sweep"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/telemetry"
)

// Stores are the persistence backends the services run on.
type Stores struct {
	Links      store.LinkStore
	Operations store.OperationStore
	Documents  store.DocumentStore
	KV         store.KeyValueStore
	State      store.TransientStore
}

// Services are the wired domain services.
type Services struct {
	Stores    Stores
	Telemetry *telemetry.Provider
	Settings  *settings.Service
	Scanner   *scanner.Orchestrator
	Replacer  *replacer.Engine
	Rules     *rules.Service
	Exporter  *exporter.Service
	Runner    *sweep.Runner
}

// NewServices wires the domain services over stores and seeds the runtime
// settings from the sweeper section on first start.
func NewServices(ctx context.Context, cfg *config.Config, log logger.Logger, stores Stores) (*Services, error) {
	tel := telemetry.NewProvider(nil)

	settingsSvc := settings.NewService(stores.KV, settings.FromConfig(cfg.Sweeper))
	if err := settingsSvc.Seed(ctx); err != nil {
		return nil, err
	}

	checkerLog := log.With(logger.String("component", "checker"))
	newChecker := func(c checker.Config) scanner.LinkChecker {
		c.MaxRedirects = cfg.Sweeper.MaxRedirects
		c.Concurrency = cfg.Sweeper.CheckConcurrency
		return checker.New(c, checker.WithLogger(checkerLog), checker.WithRecorder(tel))
	}

	scan := scanner.New(scanner.Config{
		Links:      stores.Links,
		Documents:  stores.Documents,
		State:      stores.State,
		Settings:   settingsSvc,
		NewChecker: newChecker,
		Logger:     log.With(logger.String("component", "scanner")),
		Recorder:   tel,
		ScanTTL:    cfg.Sweeper.ScanTTL,
	})

	engine := replacer.New(replacer.Config{
		Documents:  stores.Documents,
		Links:      stores.Links,
		Operations: stores.Operations,
		Settings:   settingsSvc,
		Logger:     log.With(logger.String("component", "replacer")),
		Recorder:   tel,
	})

	ruleSvc := rules.New(rules.Config{
		Store:    stores.KV,
		Links:    stores.Links,
		Replacer: engine,
		Logger:   log.With(logger.String("component", "rules")),
	})

	runner := sweep.NewRunner(sweep.Config{
		Scanner:        scan,
		Rules:          ruleSvc,
		AutoApplyRules: cfg.Schedule.AutoApplyRules,
		Logger:         log.With(logger.String("component", "sweep")),
		Recorder:       tel,
	})

	return &Services{
		Stores:    stores,
		Telemetry: tel,
		Settings:  settingsSvc,
		Scanner:   scan,
		Replacer:  engine,
		Rules:     ruleSvc,
		Exporter:  exporter.NewService(stores.Links),
		Runner:    runner,
	}, nil
}

// NewScheduler returns the sweep scheduler. It returns
// sweep.ErrScheduleDisabled when scheduling is off. A single run is bounded
// by the scan TTL.
func (s *Services) NewScheduler(cfg *config.Config, log logger.Logger) (*sweep.Scheduler, error) {
	timeout := cfg.Sweeper.ScanTTL
	if timeout <= 0 {
		timeout = time.Hour
	}
	return sweep.NewScheduler(cfg.Schedule.Spec, s.Runner, log.With(logger.String("component", "scheduler")), timeout)
}
