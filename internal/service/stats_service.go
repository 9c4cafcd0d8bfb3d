package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wellnesslog/internal/db"
	"gorm.io/gorm"
)

// 统计区间
const (
	StatsPeriodDay   = "day"
	StatsPeriodWeek  = "week"
	StatsPeriodMonth = "month"
	StatsPeriodAll   = "all"
)

// MissionStats 是某个区间内用户任务的汇总
type MissionStats struct {
	UserID       string `json:"user_id"`
	Period       string `json:"period"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	Total        int64  `json:"total"`
	Active       int64  `json:"active"`
	Completed    int64  `json:"completed"`
	Expired      int64  `json:"expired"`
	Cancelled    int64  `json:"cancelled"`
	PointsEarned int64  `json:"points_earned"`
}

// StatsService 汇总用户任务数量与积分
type StatsService struct {
	db       *gorm.DB
	profiles *UserProfileService
	now      func() time.Time
}

// NewStatsService 构造 StatsService
func NewStatsService(gdb *gorm.DB, profiles *UserProfileService) *StatsService {
	return &StatsService{db: gdb, profiles: profiles, now: time.Now}
}

// WithClock 在测试中固定当前时间
func (s *StatsService) WithClock(now func() time.Time) *StatsService {
	if now != nil {
		s.now = now
	}
	return s
}

// Summarize 统计 anchor 所在区间（为空时取用户当地今天）的任务。
// 积分只累计已完成任务。
func (s *StatsService) Summarize(ctx context.Context, userID, period, anchor string) (*MissionStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" {
		period = StatsPeriodDay
	}

	if anchor == "" {
		today, err := s.profiles.Today(ctx, userID, s.now())
		if err != nil {
			return nil, err
		}
		anchor = today
	}
	from, to, err := statsRange(period, anchor)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&db.UserMission{}).
		Joins("JOIN mission_definitions ON mission_definitions.id = user_missions.mission_id").
		Where("user_missions.user_id = ?", userID)
	if from != "" {
		query = query.Where("user_missions.mission_date >= ? AND user_missions.mission_date < ?", from, to)
	}

	var rows []struct {
		Status string
		Count  int64
		Points int64
	}
	if err := query.
		Select("user_missions.status AS status, COUNT(*) AS count, COALESCE(SUM(mission_definitions.points), 0) AS points").
		Group("user_missions.status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("summarize missions: %w", err)
	}

	stats := &MissionStats{UserID: userID, Period: period, From: from, To: to}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case db.MissionStatusActive:
			stats.Active = row.Count
		case db.MissionStatusCompleted:
			stats.Completed = row.Count
			stats.PointsEarned = row.Points
		case db.MissionStatusExpired:
			stats.Expired = row.Count
		case db.MissionStatusCancelled:
			stats.Cancelled = row.Count
		}
	}
	return stats, nil
}

// statsRange 返回 [from, to) 区间，all 时两者为空
func statsRange(period, anchor string) (string, string, error) {
	day, err := ParseDay(anchor)
	if err != nil {
		return "", "", err
	}

	switch period {
	case StatsPeriodDay:
		return day.Format(db.DayLayout), day.AddDate(0, 0, 1).Format(db.DayLayout), nil
	case StatsPeriodWeek:
		start, err := PeriodStart(db.PeriodWeekly, anchor)
		if err != nil {
			return "", "", err
		}
		end, err := AddDays(start, 7)
		return start, end, err
	case StatsPeriodMonth:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.Format(db.DayLayout), first.AddDate(0, 1, 0).Format(db.DayLayout), nil
	case StatsPeriodAll:
		return "", "", nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidStatsPeriod, period)
	}
}
