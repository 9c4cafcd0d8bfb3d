package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/wellnesslog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceService 保存用户的任务列表展示偏好，并据此输出任务列表
type PreferenceService struct {
	db *gorm.DB
}

// PreferenceInput 更新偏好时的可选字段，nil 表示保持不变
type PreferenceInput struct {
	ShowCompletedMissions *bool
	SortBy                *string
	SortOrder             *string
}

// MissionListFilter 限定列表范围。Date 非空时只返回该日的日任务和所在周的周任务。
type MissionListFilter struct {
	Date string
}

// NewPreferenceService 构造 PreferenceService
func NewPreferenceService(gdb *gorm.DB) *PreferenceService {
	return &PreferenceService{db: gdb}
}

// Get 返回用户偏好，首次读取时按默认值落库
func (s *PreferenceService) Get(ctx context.Context, userID string) (*db.UserMissionPreference, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidPreference)
	}

	pref := db.DefaultMissionPreference(userID)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&pref).Error; err != nil {
		return nil, fmt.Errorf("init mission preference: %w", err)
	}

	var stored db.UserMissionPreference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("load mission preference: %w", err)
	}
	return &stored, nil
}

// Update 修改用户偏好
func (s *PreferenceService) Update(ctx context.Context, userID string, input PreferenceInput) (*db.UserMissionPreference, error) {
	pref, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, err := ApplyPreferenceInput(*pref, input)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&db.UserMissionPreference{}).
		Where("user_id = ?", pref.UserID).
		Updates(map[string]any{
			"show_completed_missions": next.ShowCompletedMissions,
			"sort_by":                 next.SortBy,
			"sort_order":              next.SortOrder,
		}).Error; err != nil {
		return nil, fmt.Errorf("update mission preference: %w", err)
	}
	return s.Get(ctx, userID)
}

// ApplyPreferenceInput 在偏好上叠加输入，不写库；用于请求参数临时覆盖
func ApplyPreferenceInput(pref db.UserMissionPreference, input PreferenceInput) (db.UserMissionPreference, error) {
	if input.ShowCompletedMissions != nil {
		pref.ShowCompletedMissions = *input.ShowCompletedMissions
	}
	if input.SortBy != nil {
		sortBy := strings.ToLower(strings.TrimSpace(*input.SortBy))
		switch sortBy {
		case db.SortByProgress, db.SortByDifficulty, db.SortByPoints, db.SortByCategory:
			pref.SortBy = sortBy
		default:
			return pref, fmt.Errorf("%w: unsupported sort_by %q", ErrInvalidPreference, *input.SortBy)
		}
	}
	if input.SortOrder != nil {
		order := strings.ToLower(strings.TrimSpace(*input.SortOrder))
		if order != db.SortOrderAsc && order != db.SortOrderDesc {
			return pref, fmt.Errorf("%w: unsupported sort_order %q", ErrInvalidPreference, *input.SortOrder)
		}
		pref.SortOrder = order
	}
	return pref, nil
}

// ListMissions 按偏好输出用户任务，只读。
// 进行中的任务总在其他状态之前；同一排序键下最近更新的在前。
func (s *PreferenceService) ListMissions(ctx context.Context, userID string, pref db.UserMissionPreference, filter MissionListFilter) ([]db.UserMission, error) {
	query := s.db.WithContext(ctx).
		Preload("Mission", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Where("user_missions.user_id = ?", userID)

	if !pref.ShowCompletedMissions {
		query = query.Where("user_missions.status <> ?", db.MissionStatusCompleted)
	}

	if filter.Date != "" {
		weekStart, err := PeriodStart(db.PeriodWeekly, filter.Date)
		if err != nil {
			return nil, err
		}
		query = query.
			Joins("JOIN mission_definitions ON mission_definitions.id = user_missions.mission_id").
			Where("((mission_definitions.period = ? AND user_missions.mission_date = ?) OR (mission_definitions.period = ? AND user_missions.mission_date = ?))",
				db.PeriodDaily, filter.Date, db.PeriodWeekly, weekStart)
	}

	var missions []db.UserMission
	if err := query.Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("list user missions: %w", err)
	}

	SortMissions(missions, pref)
	return missions, nil
}

// SortMissions 按偏好对任务原地排序
func SortMissions(missions []db.UserMission, pref db.UserMissionPreference) {
	desc := pref.SortOrder == db.SortOrderDesc
	slices.SortStableFunc(missions, func(a, b db.UserMission) int {
		if c := cmp.Compare(statusRank(a.Status), statusRank(b.Status)); c != 0 {
			return c
		}

		c := compareBySortKey(a, b, pref.SortBy)
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}

		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func statusRank(status string) int {
	if status == db.MissionStatusActive {
		return 0
	}
	return 1
}

func compareBySortKey(a, b db.UserMission, sortBy string) int {
	switch sortBy {
	case db.SortByDifficulty:
		return cmp.Compare(a.Mission.Difficulty, b.Mission.Difficulty)
	case db.SortByPoints:
		return cmp.Compare(a.Mission.Points, b.Mission.Points)
	case db.SortByCategory:
		return cmp.Compare(a.Mission.Category, b.Mission.Category)
	default:
		return cmp.Compare(a.Progress, b.Progress)
	}
}

// GetUserMission 返回用户的单个任务
func (s *PreferenceService) GetUserMission(ctx context.Context, userID string, id uint) (*db.UserMission, error) {
	var um db.UserMission
	err := s.db.WithContext(ctx).
		Preload("Mission", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&um).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserMissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user mission: %w", err)
	}
	return &um, nil
}
