package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/config"
	"github.com/wellnesslog/internal/db"
	"gorm.io/gorm"
)

// EngineOptions 是任务引擎的可调参数，全部来自注入的配置
type EngineOptions struct {
	DefaultLocation     *time.Location
	StarterMissionLimit int
	ResolverTimeout     time.Duration
	Retry               RetryPolicy
	BatchConcurrency    int
}

// OptionsFromConfig 把应用配置转换为引擎参数，时区无效时回退 UTC 并返回错误供调用方记录
func OptionsFromConfig(cfg config.AppConfig) (EngineOptions, error) {
	loc, err := cfg.Location()
	return EngineOptions{
		DefaultLocation:     loc,
		StarterMissionLimit: cfg.StarterMissionLimit,
		ResolverTimeout:     cfg.ResolverTimeout,
		Retry:               RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff},
		BatchConcurrency:    cfg.BatchConcurrency,
	}, err
}

// MissionEngine 汇总任务引擎的各个服务，供 handler、调度器和脚本共用
type MissionEngine struct {
	Profiles    *UserProfileService
	Tracking    *TrackingService
	Catalog     *CatalogService
	Resolver    *AggregationResolver
	Progress    *ProgressService
	Assignment  *AssignmentService
	Preferences *PreferenceService
	Stats       *StatsService

	logger logrus.FieldLogger
}

// NewMissionEngine 基于同一个数据库连接构造全部服务
func NewMissionEngine(gdb *gorm.DB, opts EngineOptions, logger logrus.FieldLogger) *MissionEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	profiles := NewUserProfileService(gdb, opts.DefaultLocation)
	resolver := NewAggregationResolver(gdb, opts.ResolverTimeout)

	return &MissionEngine{
		Profiles:    profiles,
		Tracking:    NewTrackingService(gdb, profiles),
		Catalog:     NewCatalogService(gdb),
		Resolver:    resolver,
		Progress:    NewProgressService(gdb, resolver, profiles, opts.Retry, opts.BatchConcurrency, logger),
		Assignment:  NewAssignmentService(gdb, profiles, opts.StarterMissionLimit, opts.Retry, logger),
		Preferences: NewPreferenceService(gdb),
		Stats:       NewStatsService(gdb, profiles),
		logger:      logger,
	}
}

// WithClock 统一替换各服务的时钟，仅用于测试
func (e *MissionEngine) WithClock(now func() time.Time) *MissionEngine {
	e.Tracking.WithClock(now)
	e.Progress.WithClock(now)
	e.Assignment.WithClock(now)
	e.Stats.WithClock(now)
	return e
}

// Now 返回引擎当前时间，handler 用它推算用户当地今天
func (e *MissionEngine) Now() time.Time {
	return e.Progress.now()
}

// Track 写入追踪记录并触发任务分配与进度重算。
// 记录写入成功即返回成功，后续处理的错误只记录日志。
func (e *MissionEngine) Track(ctx context.Context, input TrackingEventInput) (db.TrackingEvent, error) {
	event, err := e.Tracking.Record(ctx, input)
	if err != nil {
		return nil, err
	}
	e.OnTrackingEventWritten(ctx, event)
	return event, nil
}

// OnTrackingEventWritten 在追踪记录写入后调用：
// 当天首次记录某类别时分配入门任务，然后重算该类别的进行中任务。
// 记录已经提交，这里的任何失败都不会回传给写入方。
func (e *MissionEngine) OnTrackingEventWritten(ctx context.Context, event db.TrackingEvent) {
	if event == nil {
		return
	}
	userID := event.EventUserID()
	category := event.TrackingCategory()
	day := event.EventDay()
	entry := e.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"category": category,
		"date":     day,
	})

	today, err := e.Profiles.Today(ctx, userID, e.Now())
	if err != nil {
		entry.WithError(err).Warn("resolve user day failed, skipping auto assignment")
	} else if day == today {
		if _, err := e.Assignment.OnFirstEventInCategory(ctx, userID, category, day); err != nil {
			entry.WithError(err).Error("auto assignment failed")
		}
	}

	report, err := e.Progress.RecomputeForEvent(ctx, userID, category, day)
	if err != nil {
		entry.WithError(err).Error("recompute missions failed")
		return
	}
	if len(report.Failures) > 0 {
		entry.WithFields(logrus.Fields{
			"run_id": report.RunID,
			"failed": len(report.Failures),
		}).Warn("some missions were not recomputed")
	}
}

// RunNightly 重算 day 的任务后处理过期任务，供调度器与运维脚本调用
func (e *MissionEngine) RunNightly(ctx context.Context, day string) (*BatchReport, error) {
	report, err := e.Progress.Reconcile(ctx, day)
	if err != nil {
		return nil, err
	}
	expired, err := e.Progress.ExpireOverdue(ctx)
	if err != nil {
		return report, err
	}
	report.Expired += expired.Expired
	report.Failures = append(report.Failures, expired.Failures...)
	return report, nil
}
