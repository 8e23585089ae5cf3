package sweep_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
	"github.com/jonesrussell/north-cloud/link-sweeper/internal/sweep"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		spec string
		next time.Time
	}{
		{"hourly", time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)},
		{"twicedaily", time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)},
		{"daily", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"Weekly", time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
		{"15 3 * * *", time.Date(2026, 3, 5, 3, 15, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			schedule, err := sweep.ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.next, schedule.Next(from))
		})
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	t.Parallel()

	_, err := sweep.ParseSchedule("")
	require.ErrorIs(t, err, sweep.ErrScheduleDisabled)

	_, err = sweep.ParseSchedule("disabled")
	require.ErrorIs(t, err, sweep.ErrScheduleDisabled)

	_, err = sweep.ParseSchedule("every tuesday")
	require.ErrorIs(t, err, domain.ErrValidation)
}

type countingRunner struct {
	calls chan struct{}
	err   error
}

func (r *countingRunner) Run(context.Context) (sweep.Result, error) {
	r.calls <- struct{}{}
	return sweep.Result{}, r.err
}

func TestScheduler_RunOnceSkipsWhenScanning(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{calls: make(chan struct{}, 1), err: domain.ErrAlreadyScanning}
	s, err := sweep.NewScheduler("hourly", runner, nil, time.Minute)
	require.NoError(t, err)

	s.RunOnce(context.Background())
	assert.Len(t, runner.calls, 1)
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{calls: make(chan struct{}, 1)}
	s, err := sweep.NewScheduler("daily", runner, nil, 0)
	require.NoError(t, err)

	now := time.Now()
	assert.True(t, s.NextRun(now).After(now))

	s.Start(context.Background())
	s.Stop()
	assert.Empty(t, runner.calls)
}
