package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultStarterMissionLimit = 3

// AssignmentService 负责自动分配入门任务，以及用户主动领取/取消任务
type AssignmentService struct {
	db       *gorm.DB
	profiles *UserProfileService
	limit    int
	retry    RetryPolicy
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewAssignmentService 构造 AssignmentService，limit<=0 时默认 3 个
func NewAssignmentService(gdb *gorm.DB, profiles *UserProfileService, limit int, retry RetryPolicy, logger logrus.FieldLogger) *AssignmentService {
	if limit <= 0 {
		limit = defaultStarterMissionLimit
	}
	return &AssignmentService{db: gdb, profiles: profiles, limit: limit, retry: retry, logger: logger, now: time.Now}
}

// WithClock 在测试中固定当前时间
func (s *AssignmentService) WithClock(now func() time.Time) *AssignmentService {
	if now != nil {
		s.now = now
	}
	return s
}

// OnFirstEventInCategory 在用户当天某类别尚无日任务时，按难度、目标值升序挑选
// 至多 limit 个启用中的日任务并创建。重复或并发调用依赖唯一索引去重，
// 已存在的行视为成功，不会报错。
func (s *AssignmentService) OnFirstEventInCategory(ctx context.Context, userID, category, day string) ([]db.UserMission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if _, ok := db.SourceForCategory(category); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if _, err := ParseDay(day); err != nil {
		return nil, err
	}

	var assigned []db.UserMission
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		assigned, err = s.assignStarters(ctx, userID, category, day)
		return err
	})
	return assigned, err
}

func (s *AssignmentService) assignStarters(ctx context.Context, userID, category, day string) ([]db.UserMission, error) {
	gdb := s.db.WithContext(ctx)

	var existing int64
	if err := gdb.Model(&db.UserMission{}).
		Joins("JOIN mission_definitions ON mission_definitions.id = user_missions.mission_id").
		Where("user_missions.user_id = ? AND user_missions.mission_date = ? AND mission_definitions.category = ?", userID, day, category).
		Where("mission_definitions.period = ?", db.PeriodDaily).
		Count(&existing).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("count category missions: %w", err))
	}
	if existing > 0 {
		return nil, nil
	}

	var starters []db.MissionDefinition
	if err := gdb.Where("category = ? AND is_active = ? AND period = ?", category, true, db.PeriodDaily).
		Order("difficulty ASC, target_value ASC, id ASC").
		Limit(s.limit).
		Find(&starters).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("select starter missions: %w", err))
	}
	if len(starters) == 0 {
		return nil, nil
	}

	rows := make([]db.UserMission, 0, len(starters))
	missionIDs := make([]uint, 0, len(starters))
	for _, def := range starters {
		rows = append(rows, db.UserMission{
			UserID:      userID,
			MissionID:   def.ID,
			MissionDate: day,
			Status:      db.MissionStatusActive,
			Source:      db.MissionSourceAuto,
			Version:     1,
		})
		missionIDs = append(missionIDs, def.ID)
	}

	res := gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}, {Name: "mission_date"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return nil, classifyStoreError(fmt.Errorf("create starter missions: %w", res.Error))
	}
	metrics.RecordAssignments(int(res.RowsAffected))

	var assigned []db.UserMission
	if err := gdb.Preload("Mission").
		Where("user_id = ? AND mission_date = ? AND mission_id IN ?", userID, day, missionIDs).
		Order("id ASC").
		Find(&assigned).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("reload starter missions: %w", err))
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"category": category,
		"date":     day,
		"created":  res.RowsAffected,
	}).Info("assigned starter missions")

	return assigned, nil
}

// AcceptMission 用户主动领取任务。day 为空时取用户当地今天，周任务归一到当周周一。
func (s *AssignmentService) AcceptMission(ctx context.Context, userID string, missionID uint, day string) (*db.UserMission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	var def db.MissionDefinition
	if err := s.db.WithContext(ctx).First(&def, missionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMissionNotFound
		}
		return nil, fmt.Errorf("load mission: %w", err)
	}
	if !def.IsActive {
		return nil, ErrMissionInactive
	}

	if strings.TrimSpace(day) == "" {
		today, err := s.profiles.Today(ctx, userID, s.now())
		if err != nil {
			return nil, err
		}
		day = today
	}
	missionDate, err := PeriodStart(def.Period, day)
	if err != nil {
		return nil, err
	}

	row := db.UserMission{
		UserID:      userID,
		MissionID:   def.ID,
		MissionDate: missionDate,
		Status:      db.MissionStatusActive,
		Source:      db.MissionSourceManual,
		Version:     1,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}, {Name: "mission_date"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return nil, classifyStoreError(fmt.Errorf("accept mission: %w", res.Error))
	}

	var stored db.UserMission
	if err := s.db.WithContext(ctx).Preload("Mission").
		Where("user_id = ? AND mission_id = ? AND mission_date = ?", userID, def.ID, missionDate).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload accepted mission: %w", err)
	}

	if res.RowsAffected == 0 {
		return &stored, statusConflictError(stored.Status)
	}
	return &stored, nil
}

// CancelMission 用户主动取消进行中的任务
func (s *AssignmentService) CancelMission(ctx context.Context, userID string, userMissionID uint) (*db.UserMission, error) {
	var cancelled *db.UserMission
	err := withRetry(ctx, s.retry, func(ctx context.Context) error {
		var um db.UserMission
		if err := s.db.WithContext(ctx).Preload("Mission").
			Where("id = ? AND user_id = ?", userMissionID, userID).
			First(&um).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserMissionNotFound
			}
			return classifyStoreError(fmt.Errorf("load user mission: %w", err))
		}

		if um.Status != db.MissionStatusActive {
			return statusConflictError(um.Status)
		}

		now := s.now()
		res := s.db.WithContext(ctx).Model(&db.UserMission{}).
			Where("id = ? AND version = ?", um.ID, um.Version).
			Updates(map[string]any{
				"status":     db.MissionStatusCancelled,
				"version":    um.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return classifyStoreError(fmt.Errorf("cancel user mission: %w", res.Error))
		}
		if res.RowsAffected == 0 {
			return ErrConcurrencyConflict
		}

		um.Status = db.MissionStatusCancelled
		um.Version++
		um.UpdatedAt = now
		cancelled = &um
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func statusConflictError(status string) error {
	switch status {
	case db.MissionStatusActive:
		return ErrMissionAlreadyActive
	case db.MissionStatusCompleted:
		return ErrMissionAlreadyCompleted
	default:
		return ErrMissionNotActive
	}
}
