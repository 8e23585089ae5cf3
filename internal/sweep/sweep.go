// Package sweep drives a complete scan from start to finish and runs it on
// a cron schedule.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/rules"
)

// Loop caps. A sweep that reaches either one moves on to the next phase.
const (
	MaxDocumentOffset = 10000
	MaxURLIterations  = 1000
)

// Sweep results recorded by the Recorder.
const (
	ResultCompleted = "completed"
	ResultStopped   = "stopped"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// Scanner is the part of the scan orchestrator a sweep drives.
type Scanner interface {
	StartScan(ctx context.Context) (int, error)
	ScanDocumentsBatch(ctx context.Context, offset int) (domain.DocumentBatchResult, error)
	CheckURLsBatch(ctx context.Context) (domain.URLBatchResult, error)
	CompleteScan(ctx context.Context) (domain.LinkStats, error)
	StopScan(ctx context.Context) error
	IsScanning(ctx context.Context) (bool, error)
}

// RuleApplier applies enabled rules to broken links.
type RuleApplier interface {
	Apply(ctx context.Context, dryRun bool) (rules.ApplyResult, error)
}

// Recorder receives one observation per sweep.
type Recorder interface {
	ObserveSweep(result string, duration time.Duration)
}

// Config wires a Runner.
type Config struct {
	Scanner        Scanner
	Rules          RuleApplier
	AutoApplyRules bool
	Logger         logger.Logger
	Recorder       Recorder
	Now            func() time.Time
}

// Result summarizes a sweep.
type Result struct {
	TotalDocuments     int                `json:"total_documents"`
	ProcessedDocuments int                `json:"processed_documents"`
	CheckedURLs        int                `json:"checked_urls"`
	Stats              domain.LinkStats   `json:"stats"`
	Stopped            bool               `json:"stopped"`
	Rules              *rules.ApplyResult `json:"rules,omitempty"`
	Duration           time.Duration      `json:"duration"`
}

// Runner executes full sweeps.
type Runner struct {
	scanner   Scanner
	rules     RuleApplier
	autoApply bool
	log       logger.Logger
	recorder  Recorder
	now       func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		scanner:   cfg.Scanner,
		rules:     cfg.Rules,
		autoApply: cfg.AutoApplyRules,
		log:       cfg.Logger,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
	}
}

// Run starts a scan, drives both batch phases until has_more is false and
// completes it. When the scan flag disappears mid-sweep the run returns with
// Stopped set and does not complete the scan. It returns
// domain.ErrAlreadyScanning when another scan holds the flag.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := r.now()
	res, err := r.run(ctx)
	res.Duration = r.now().Sub(start)

	r.observe(outcome(res, err), res.Duration)
	return res, err
}

func (r *Runner) run(ctx context.Context) (Result, error) {
	var res Result

	total, err := r.scanner.StartScan(ctx)
	if err != nil {
		return res, err
	}
	res.TotalDocuments = total

	res, err = r.drive(ctx, res)
	if err != nil {
		r.release(ctx, err)
	}
	return res, err
}

func (r *Runner) drive(ctx context.Context, res Result) (Result, error) {
	stopped, err := r.scanDocuments(ctx, &res)
	if err != nil || stopped {
		res.Stopped = stopped
		return res, err
	}

	stopped, err = r.checkURLs(ctx, &res)
	if err != nil || stopped {
		res.Stopped = stopped
		return res, err
	}

	stats, err := r.scanner.CompleteScan(ctx)
	if err != nil {
		return res, err
	}
	res.Stats = stats

	r.log.Info("Sweep completed",
		logger.Int("documents", res.ProcessedDocuments),
		logger.Int("checked_urls", res.CheckedURLs),
		logger.Int("total_links", stats.Total),
		logger.Int("broken_links", stats.Broken),
	)

	if r.autoApply && r.rules != nil {
		applied, applyErr := r.rules.Apply(ctx, false)
		if applyErr != nil {
			r.log.Error("Auto-apply rules failed", logger.Error(applyErr))
			return res, nil
		}
		res.Rules = &applied
	}

	return res, nil
}

// release clears the scan flag after a failed sweep so the next one does
// not wait for the flag TTL.
func (r *Runner) release(ctx context.Context, cause error) {
	r.log.Warn("Sweep aborted", logger.Error(cause))
	if err := r.scanner.StopScan(context.WithoutCancel(ctx)); err != nil {
		r.log.Error("Failed to release scan flag", logger.Error(err))
	}
}

func (r *Runner) scanDocuments(ctx context.Context, res *Result) (bool, error) {
	offset := 0
	for {
		batch, err := r.scanner.ScanDocumentsBatch(ctx, offset)
		res.ProcessedDocuments += batch.ProcessedCount
		if err != nil {
			return false, err
		}
		if !batch.HasMore {
			return false, nil
		}

		offset = batch.NextOffset
		if offset > MaxDocumentOffset {
			r.log.Warn("Document offset cap reached", logger.Int("offset", offset))
			return false, nil
		}

		if stopped, stopErr := r.stopped(ctx); stopErr != nil || stopped {
			return stopped, stopErr
		}
	}
}

func (r *Runner) checkURLs(ctx context.Context, res *Result) (bool, error) {
	for i := 1; ; i++ {
		batch, err := r.scanner.CheckURLsBatch(ctx)
		res.CheckedURLs += batch.CheckedCount
		if err != nil {
			return false, err
		}
		if !batch.HasMore {
			return false, nil
		}

		if i >= MaxURLIterations {
			r.log.Warn("URL batch cap reached", logger.Int("iterations", i))
			return false, nil
		}

		if stopped, stopErr := r.stopped(ctx); stopErr != nil || stopped {
			return stopped, stopErr
		}
	}
}

// stopped reports whether stop_scan cleared the flag since the last batch.
func (r *Runner) stopped(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	scanning, err := r.scanner.IsScanning(ctx)
	if err != nil {
		return false, err
	}
	if !scanning {
		r.log.Info("Sweep stopped")
	}
	return !scanning, nil
}

func (r *Runner) observe(result string, d time.Duration) {
	if r.recorder != nil {
		r.recorder.ObserveSweep(result, d)
	}
}

func outcome(res Result, err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyScanning):
		return ResultSkipped
	case err != nil:
		return ResultFailed
	case res.Stopped:
		return ResultStopped
	default:
		return ResultCompleted
	}
}
