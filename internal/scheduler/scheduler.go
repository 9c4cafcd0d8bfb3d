// Package scheduler 定时执行任务进度对账与过期处理。
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

const (
	// DefaultRunAt 默认每天 00:15 运行，此时前一天的数据已基本写完
	DefaultRunAt = "00:15"
	// runTimeout 限制单次对账的最长时间
	runTimeout = 30 * time.Minute
)

// Reconciler 对指定日期做一次对账
type Reconciler interface {
	RunNightly(ctx context.Context, day string) (*service.BatchReport, error)
}

// Scheduler 包装 gocron，按配置时间对前一天做对账
type Scheduler struct {
	scheduler  *gocron.Scheduler
	reconciler Reconciler
	location   *time.Location
	runAt      string
	logger     logrus.FieldLogger
	now        func() time.Time
}

// New 创建调度器，loc 为空时使用 UTC
func New(reconciler Reconciler, loc *time.Location, runAt string, logger logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	runAt = strings.TrimSpace(runAt)
	if runAt == "" {
		runAt = DefaultRunAt
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(loc),
		reconciler: reconciler,
		location:   loc,
		runAt:      runAt,
		logger:     logger,
		now:        time.Now,
	}
}

// Start 注册每日任务并以非阻塞方式启动
func (s *Scheduler) Start() error {
	s.scheduler.SingletonModeAll()
	if _, err := s.scheduler.Every(1).Day().At(s.runAt).Do(s.runScheduled); err != nil {
		return fmt.Errorf("schedule nightly reconciliation at %q: %w", s.runAt, err)
	}
	s.scheduler.StartAsync()

	s.logger.WithFields(logrus.Fields{
		"run_at":   s.runAt,
		"timezone": s.location.String(),
	}).Info("nightly reconciliation scheduled")
	return nil
}

// Stop 停止调度，正在执行的任务会继续跑完
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

// RunOnce 立即对前一天做一次对账
func (s *Scheduler) RunOnce(ctx context.Context) (*service.BatchReport, error) {
	day := s.now().In(s.location).AddDate(0, 0, -1).Format(db.DayLayout)
	entry := s.logger.WithField("date", day)

	report, err := s.reconciler.RunNightly(ctx, day)
	if err != nil {
		entry.WithError(err).Error("nightly reconciliation failed")
		return report, err
	}

	entry.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"total":     report.Total,
		"updated":   report.Updated,
		"completed": report.Completed,
		"expired":   report.Expired,
		"failed":    len(report.Failures),
	}).Info("nightly reconciliation finished")
	return report, nil
}
