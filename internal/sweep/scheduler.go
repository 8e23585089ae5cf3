package sweep

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/logger"
)

// Disabled turns scheduled sweeps off.
const Disabled = "disabled"

var presets = map[string]string{
	"hourly":     "@hourly",
	"twicedaily": "0 */12 * * *",
	"daily":      "@daily",
	"weekly":     "@weekly",
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ErrScheduleDisabled is returned by ParseSchedule for the disabled preset.
var ErrScheduleDisabled = errors.New("schedule disabled")

// ParseSchedule resolves a preset name or a 5-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" || spec == Disabled {
		return nil, ErrScheduleDisabled
	}
	if expr, ok := presets[spec]; ok {
		spec = expr
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, domain.Validationf("invalid schedule %q: %v", spec, err)
	}
	return schedule, nil
}

// SweepRunner runs one sweep.
type SweepRunner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler runs sweeps on a cron schedule. Runs never overlap; a run that
// finds a scan already in progress is skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	runner   SweepRunner
	log      logger.Logger
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler parses spec and prepares a scheduler. timeout bounds a
// single run; zero means no bound.
func NewScheduler(spec string, runner SweepRunner, log logger.Logger, timeout time.Duration) (*Scheduler, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		runner:   runner,
		log:      log,
		timeout:  timeout,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.trigger))
	return s, nil
}

// Start begins scheduling. Runs inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("Sweep scheduler started", logger.Time("next_run", s.NextRun(time.Now())))
}

// Stop halts scheduling, cancels an in-flight run and waits for it to
// return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.log.Info("Sweep scheduler stopped")
}

// NextRun returns the next activation after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) trigger() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.RunOnce(ctx)
}

// RunOnce runs one scheduled sweep and logs the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) {
	res, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrAlreadyScanning):
		s.log.Info("Scheduled sweep skipped: scan already in progress")
	case err != nil:
		s.log.Error("Scheduled sweep failed", logger.Error(err))
	default:
		s.log.Info("Scheduled sweep finished",
			logger.Bool("stopped", res.Stopped),
			logger.Int("documents", res.ProcessedDocuments),
			logger.Int("checked_urls", res.CheckedURLs),
			logger.Duration("duration", res.Duration),
			logger.String("next_run", s.NextRun(time.Now()).Format(time.RFC3339)),
		)
	}
}
