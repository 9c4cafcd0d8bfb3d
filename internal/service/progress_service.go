package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/metrics"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ProgressService 根据追踪数据重算用户任务进度并推进状态。
// 每次都从追踪表重新聚合，不做增量累加，因此重复调用结果一致。
type ProgressService struct {
	db          *gorm.DB
	resolver    *AggregationResolver
	profiles    *UserProfileService
	retry       RetryPolicy
	concurrency int
	logger      logrus.FieldLogger
	now         func() time.Time
}

// MissionFailure 记录批处理中单个任务的失败
type MissionFailure struct {
	UserMissionID uint
	MissionID     uint
	UserID        string
	Kind          string
	Err           error
}

// BatchReport 汇总一次批量重算的结果
type BatchReport struct {
	RunID     string
	Date      string
	Total     int
	Updated   int
	Completed int
	Unchanged int
	Expired   int
	Failures  []MissionFailure
}

// ConfigurationErrors 返回配置错误数量
func (r *BatchReport) ConfigurationErrors() int {
	count := 0
	for _, f := range r.Failures {
		if errors.Is(f.Err, ErrConfiguration) {
			count++
		}
	}
	return count
}

type updateOutcome int

const (
	outcomeUnchanged updateOutcome = iota
	outcomeUpdated
	outcomeCompleted
)

// NewProgressService 构造 ProgressService
func NewProgressService(gdb *gorm.DB, resolver *AggregationResolver, profiles *UserProfileService, retry RetryPolicy, concurrency int, logger logrus.FieldLogger) *ProgressService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ProgressService{
		db:          gdb,
		resolver:    resolver,
		profiles:    profiles,
		retry:       retry,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock 在测试中固定当前时间
func (s *ProgressService) WithClock(now func() time.Time) *ProgressService {
	if now != nil {
		s.now = now
	}
	return s
}

// UpdateProgress 重算单个用户任务。终态任务原样返回。
func (s *ProgressService) UpdateProgress(ctx context.Context, userMissionID uint) (*db.UserMission, error) {
	mission, _, err := s.update(ctx, userMissionID)
	return mission, err
}

func (s *ProgressService) update(ctx context.Context, userMissionID uint) (*db.UserMission, updateOutcome, error) {
	var (
		result  *db.UserMission
		outcome updateOutcome
	)
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		result, outcome, err = s.updateOnce(ctx, userMissionID)
		return err
	})

	switch {
	case err == nil && outcome == outcomeCompleted:
		metrics.RecordMissionUpdate(metrics.OutcomeCompleted)
	case err == nil && outcome == outcomeUpdated:
		metrics.RecordMissionUpdate(metrics.OutcomeUpdated)
	case err == nil:
		metrics.RecordMissionUpdate(metrics.OutcomeUnchanged)
	case errors.Is(err, ErrConfiguration):
		metrics.RecordMissionUpdate(metrics.OutcomeConfigError)
	default:
		metrics.RecordMissionUpdate(metrics.OutcomeFailed)
	}
	return result, outcome, err
}

func (s *ProgressService) updateOnce(ctx context.Context, userMissionID uint) (*db.UserMission, updateOutcome, error) {
	um, err := s.load(ctx, userMissionID)
	if err != nil {
		return nil, outcomeUnchanged, err
	}
	if um.IsTerminal() {
		return um, outcomeUnchanged, nil
	}

	agg, err := s.aggregate(ctx, um)
	if err != nil {
		return um, outcomeUnchanged, err
	}

	next := applyAggregate(*um, um.Mission.TargetValue, agg.Value, s.now())
	if next.CurrentValue == um.CurrentValue && next.Progress == um.Progress && next.Status == um.Status {
		return um, outcomeUnchanged, nil
	}

	if err := s.save(ctx, um.Version, &next, map[string]any{
		"current_value": next.CurrentValue,
		"progress":      next.Progress,
		"status":        next.Status,
		"completed_at":  next.CompletedAt,
	}); err != nil {
		return um, outcomeUnchanged, err
	}

	if next.Status == db.MissionStatusCompleted {
		s.logger.WithFields(logrus.Fields{
			"user_id":         next.UserID,
			"user_mission_id": next.ID,
			"mission_id":      next.MissionID,
			"current_value":   next.CurrentValue,
		}).Info("mission completed")
		return &next, outcomeCompleted, nil
	}
	return &next, outcomeUpdated, nil
}

func (s *ProgressService) load(ctx context.Context, userMissionID uint) (*db.UserMission, error) {
	var um db.UserMission
	err := s.db.WithContext(ctx).
		Preload("Mission", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		First(&um, userMissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserMissionNotFound
	}
	if err != nil {
		return nil, classifyStoreError(fmt.Errorf("load user mission: %w", err))
	}
	return &um, nil
}

func (s *ProgressService) aggregate(ctx context.Context, um *db.UserMission) (Aggregate, error) {
	if um.Mission.ID == 0 {
		return Aggregate{}, &ConfigurationError{MissionID: um.MissionID, Reason: "mission definition missing"}
	}
	if um.Mission.TargetValue <= 0 {
		return Aggregate{}, &ConfigurationError{MissionID: um.MissionID, Reason: "target value must be positive"}
	}

	loc, err := s.profiles.Location(ctx, um.UserID)
	if err != nil {
		return Aggregate{}, err
	}
	window, err := PeriodWindow(um.Mission.Period, um.MissionDate, loc)
	if err != nil {
		return Aggregate{}, err
	}

	agg, err := s.resolver.Resolve(ctx, um.Mission.Mapping(), um.UserID, window)
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			cfgErr.MissionID = um.MissionID
		}
		return Aggregate{}, err
	}
	return agg, nil
}

// save 以 version 做乐观并发校验，写入失败返回 ErrConcurrencyConflict
func (s *ProgressService) save(ctx context.Context, expectedVersion int, next *db.UserMission, fields map[string]any) error {
	now := s.now()
	fields["version"] = expectedVersion + 1
	fields["updated_at"] = now

	res := s.db.WithContext(ctx).Model(&db.UserMission{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Updates(fields)
	if res.Error != nil {
		return classifyStoreError(fmt.Errorf("save user mission: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrConcurrencyConflict
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = now
	return nil
}

// applyAggregate 计算新的进度与状态：达到目标即完成且只记录一次完成时间，
// 未达到目标时进度最多为 99，保证 progress == 100 当且仅当已完成。
func applyAggregate(um db.UserMission, target, value float64, now time.Time) db.UserMission {
	if um.IsTerminal() {
		return um
	}

	um.CurrentValue = value
	if target > 0 && value >= target {
		um.Status = db.MissionStatusCompleted
		um.Progress = 100
		if um.CompletedAt == nil {
			completedAt := now
			um.CompletedAt = &completedAt
		}
		return um
	}

	um.Progress = min(progressPercent(value, target), 99)
	return um
}

func progressPercent(value, target float64) int {
	if target <= 0 || value <= 0 {
		return 0
	}
	pct := math.Round(value / target * 100)
	return int(math.Max(0, math.Min(100, pct)))
}

// RecomputeForEvent 重算与追踪类别匹配的进行中任务，
// 包括该日的日任务以及所在周的周任务。
func (s *ProgressService) RecomputeForEvent(ctx context.Context, userID, category, day string) (*BatchReport, error) {
	weekStart, err := PeriodStart(db.PeriodWeekly, day)
	if err != nil {
		return nil, err
	}

	var ids []uint
	if err := s.db.WithContext(ctx).Model(&db.UserMission{}).
		Joins("JOIN mission_definitions ON mission_definitions.id = user_missions.mission_id").
		Where("user_missions.user_id = ? AND user_missions.status = ?", userID, db.MissionStatusActive).
		Where("mission_definitions.category = ?", category).
		Where("((mission_definitions.period = ? AND user_missions.mission_date = ?) OR (mission_definitions.period = ? AND user_missions.mission_date = ?))",
			db.PeriodDaily, day, db.PeriodWeekly, weekStart).
		Order("user_missions.id ASC").
		Pluck("user_missions.id", &ids).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("list missions for event: %w", err))
	}

	report := &BatchReport{RunID: uuid.NewString(), Date: day}
	s.runSequential(ctx, ids, report)
	return report, nil
}

// Reconcile 对指定日期的全部进行中任务做一次批量重算。
// 不同用户并行处理，同一用户的任务串行，单个任务失败不会中断批处理。
func (s *ProgressService) Reconcile(ctx context.Context, day string) (*BatchReport, error) {
	started := time.Now()
	defer func() { metrics.ObserveReconcile(time.Since(started)) }()

	weekStart, err := PeriodStart(db.PeriodWeekly, day)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID     uint
		UserID string
	}
	if err := s.db.WithContext(ctx).Model(&db.UserMission{}).
		Select("user_missions.id, user_missions.user_id").
		Joins("JOIN mission_definitions ON mission_definitions.id = user_missions.mission_id").
		Where("user_missions.status = ?", db.MissionStatusActive).
		Where("((mission_definitions.period = ? AND user_missions.mission_date = ?) OR (mission_definitions.period = ? AND user_missions.mission_date = ?))",
			db.PeriodDaily, day, db.PeriodWeekly, weekStart).
		Order("user_missions.user_id ASC, user_missions.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("list missions for reconcile: %w", err))
	}

	byUser := make(map[string][]uint)
	var users []string
	for _, row := range rows {
		if _, ok := byUser[row.UserID]; !ok {
			users = append(users, row.UserID)
		}
		byUser[row.UserID] = append(byUser[row.UserID], row.ID)
	}

	report := &BatchReport{RunID: uuid.NewString(), Date: day}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, userID := range users {
		ids := byUser[userID]
		g.Go(func() error {
			partial := &BatchReport{}
			s.runSequential(gctx, ids, partial)

			mu.Lock()
			report.merge(partial)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.WithFields(logrus.Fields{
		"run_id":       report.RunID,
		"date":         day,
		"total":        report.Total,
		"updated":      report.Updated,
		"completed":    report.Completed,
		"failed":       len(report.Failures),
		"config_error": report.ConfigurationErrors(),
	}).Info("reconciliation pass finished")

	return report, nil
}

func (s *ProgressService) runSequential(ctx context.Context, ids []uint, report *BatchReport) {
	for _, id := range ids {
		report.Total++
		um, outcome, err := s.update(ctx, id)
		if err != nil {
			failure := MissionFailure{UserMissionID: id, Kind: failureKind(err), Err: err}
			if um != nil {
				failure.MissionID = um.MissionID
				failure.UserID = um.UserID
			}
			report.Failures = append(report.Failures, failure)
			s.logFailure(failure)
			continue
		}

		switch outcome {
		case outcomeCompleted:
			report.Completed++
			report.Updated++
		case outcomeUpdated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}
}

func (s *ProgressService) logFailure(f MissionFailure) {
	entry := s.logger.WithFields(logrus.Fields{
		"user_mission_id": f.UserMissionID,
		"mission_id":      f.MissionID,
		"user_id":         f.UserID,
		"kind":            f.Kind,
	}).WithError(f.Err)

	if f.Kind == "configuration" {
		entry.Warn("skipping mission with invalid tracking mapping")
		return
	}
	entry.Error("mission progress update failed")
}

func (r *BatchReport) merge(other *BatchReport) {
	r.Total += other.Total
	r.Updated += other.Updated
	r.Completed += other.Completed
	r.Unchanged += other.Unchanged
	r.Expired += other.Expired
	r.Failures = append(r.Failures, other.Failures...)
}

// ExpireOverdue 将周期已结束仍未完成的任务标记为过期。
// 过期前先做最后一次重算，期间补记达标的任务会直接完成。
func (s *ProgressService) ExpireOverdue(ctx context.Context) (*BatchReport, error) {
	now := s.now()
	// 取所有时区中最晚的日期作为候选上界，再按用户时区逐条判断
	upper := now.UTC().Add(14 * time.Hour).Format(db.DayLayout)

	var candidates []db.UserMission
	if err := s.db.WithContext(ctx).
		Preload("Mission", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Where("status = ? AND mission_date < ?", db.MissionStatusActive, upper).
		Order("id ASC").
		Find(&candidates).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("list overdue missions: %w", err))
	}

	report := &BatchReport{RunID: uuid.NewString(), Date: DayKey(now, s.profiles.DefaultLocation())}
	for _, candidate := range candidates {
		overdue, err := s.isOverdue(ctx, candidate, now)
		if err != nil {
			report.Failures = append(report.Failures, MissionFailure{UserMissionID: candidate.ID, MissionID: candidate.MissionID, UserID: candidate.UserID, Kind: failureKind(err), Err: err})
			continue
		}
		if !overdue {
			continue
		}

		report.Total++
		status, err := s.expire(ctx, candidate.ID)
		if err != nil {
			failure := MissionFailure{UserMissionID: candidate.ID, MissionID: candidate.MissionID, UserID: candidate.UserID, Kind: failureKind(err), Err: err}
			report.Failures = append(report.Failures, failure)
			s.logFailure(failure)
			continue
		}
		switch status {
		case db.MissionStatusExpired:
			report.Expired++
		case db.MissionStatusCompleted:
			report.Completed++
		default:
			report.Unchanged++
		}
	}

	if report.Total > 0 {
		s.logger.WithFields(logrus.Fields{
			"run_id":    report.RunID,
			"expired":   report.Expired,
			"completed": report.Completed,
			"failed":    len(report.Failures),
		}).Info("expired overdue missions")
	}
	return report, nil
}

func (s *ProgressService) isOverdue(ctx context.Context, um db.UserMission, now time.Time) (bool, error) {
	loc, err := s.profiles.Location(ctx, um.UserID)
	if err != nil {
		return false, err
	}
	window, err := PeriodWindow(um.Mission.Period, um.MissionDate, loc)
	if err != nil {
		return false, err
	}
	return DayKey(now, loc) >= window.End, nil
}

// expire 返回任务最终状态：expired，或最后一次重算时已 completed，或已被其他操作置为终态
func (s *ProgressService) expire(ctx context.Context, userMissionID uint) (string, error) {
	var status string
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		um, _, err := s.updateOnce(ctx, userMissionID)
		if err != nil && !errors.Is(err, ErrConfiguration) {
			return err
		}
		if um == nil {
			return ErrUserMissionNotFound
		}
		if um.IsTerminal() {
			status = um.Status
			return nil
		}

		if err := s.save(ctx, um.Version, um, map[string]any{"status": db.MissionStatusExpired}); err != nil {
			return err
		}
		status = db.MissionStatusExpired
		return nil
	})
	return status, err
}
