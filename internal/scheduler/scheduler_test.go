package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/service"
)

type fakeReconciler struct {
	days []string
	err  error
}

func (f *fakeReconciler) RunNightly(ctx context.Context, day string) (*service.BatchReport, error) {
	f.days = append(f.days, day)
	if f.err != nil {
		return nil, f.err
	}
	return &service.BatchReport{RunID: "run-1", Date: day, Total: 2, Updated: 1}, nil
}

func TestRunOnceReconcilesPreviousDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	fake := &fakeReconciler{}
	s := New(fake, tokyo, "", logging.Discard())
	// UTC 3 月 12 日 16:00 已是东京 3 月 13 日
	s.now = func() time.Time { return time.Date(2025, 3, 12, 16, 0, 0, 0, time.UTC) }

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, []string{"2025-03-12"}, fake.days)
	assert.Equal(t, DefaultRunAt, s.runAt)
}

func TestRunOnceReturnsReconcilerError(t *testing.T) {
	fake := &fakeReconciler{err: errors.New("boom")}
	s := New(fake, nil, "01:00", logging.Discard())
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC) }

	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"2024-12-31"}, fake.days)
}

func TestStartRejectsInvalidTime(t *testing.T) {
	s := New(&fakeReconciler{}, time.UTC, "25:99", logging.Discard())
	err := s.Start()
	assert.Error(t, err)
	s.Stop()
}

func TestStartAndStop(t *testing.T) {
	s := New(&fakeReconciler{}, time.UTC, "03:30", logging.Discard())
	require.NoError(t, s.Start())
	assert.True(t, s.scheduler.IsRunning())
	s.Stop()
	assert.False(t, s.scheduler.IsRunning())
}
