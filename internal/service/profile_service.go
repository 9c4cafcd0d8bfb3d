package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/wellnesslog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 日界线策略：每个用户按其保存的 IANA 时区划分自然日，
// 未设置或无法识别时使用服务配置的默认时区（默认 UTC）。
// 追踪记录的 occurred_on 在写入时按该时区确定，解析器对时间戳列按同一时区换算当日区间。

// UserProfileService 维护用户时区
type UserProfileService struct {
	db         *gorm.DB
	defaultLoc *time.Location
}

// NewUserProfileService 构造 UserProfileService，defaultLoc 为空时使用 UTC
func NewUserProfileService(gdb *gorm.DB, defaultLoc *time.Location) *UserProfileService {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &UserProfileService{db: gdb, defaultLoc: defaultLoc}
}

// DefaultLocation 返回默认时区
func (s *UserProfileService) DefaultLocation() *time.Location {
	return s.defaultLoc
}

// Location 返回用户所在时区
func (s *UserProfileService) Location(ctx context.Context, userID string) (*time.Location, error) {
	var profile db.UserProfile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultLoc, nil
	}
	if err != nil {
		return nil, classifyStoreError(fmt.Errorf("load user profile: %w", err))
	}

	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		return s.defaultLoc, nil
	}
	return loc, nil
}

// Today 返回用户当地的日期 key
func (s *UserProfileService) Today(ctx context.Context, userID string, now time.Time) (string, error) {
	loc, err := s.Location(ctx, userID)
	if err != nil {
		return "", err
	}
	return DayKey(now, loc), nil
}

// SetTimezone 设置用户时区
func (s *UserProfileService) SetTimezone(ctx context.Context, userID, timezone string) (*db.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	timezone = strings.TrimSpace(timezone)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if timezone == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, timezone)
	}

	profile := db.UserProfile{UserID: userID, Timezone: timezone}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timezone", "updated_at"}),
	}).Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("save user profile: %w", err)
	}

	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("reload user profile: %w", err)
	}
	return &profile, nil
}

// DayKey 返回 t 在 loc 时区下的 YYYY-MM-DD
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(db.DayLayout)
}

// ParseDay 校验并解析 YYYY-MM-DD
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(db.DayLayout, strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, day)
	}
	return t, nil
}

// AddDays 对日期 key 做加减
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(db.DayLayout), nil
}

// DayWindow 描述 [Start, End) 的自然日区间以及换算时间戳所用的时区
type DayWindow struct {
	Start    string
	End      string
	Location *time.Location
}

// Bounds 返回区间在 UTC 下的起止时间，用于时间戳列
func (w DayWindow) Bounds() (time.Time, time.Time, error) {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(db.DayLayout, w.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, w.Start)
	}
	end, err := time.ParseInLocation(db.DayLayout, w.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, w.End)
	}
	return start.UTC(), end.UTC(), nil
}

// SingleDay 返回单日区间
func SingleDay(day string, loc *time.Location) (DayWindow, error) {
	end, err := AddDays(day, 1)
	if err != nil {
		return DayWindow{}, err
	}
	return DayWindow{Start: day, End: end, Location: loc}, nil
}

// PeriodStart 返回某日所属周期的起始日：日任务为当天，周任务为当周周一
func PeriodStart(period, day string) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	if period != db.PeriodWeekly {
		return t.Format(db.DayLayout), nil
	}
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(db.DayLayout), nil
}

// PeriodWindow 返回任务日期对应的聚合区间
func PeriodWindow(period, missionDate string, loc *time.Location) (DayWindow, error) {
	start, err := PeriodStart(period, missionDate)
	if err != nil {
		return DayWindow{}, err
	}
	length := 1
	if period == db.PeriodWeekly {
		length = 7
	}
	end, err := AddDays(start, length)
	if err != nil {
		return DayWindow{}, err
	}
	return DayWindow{Start: start, End: end, Location: loc}, nil
}
