package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/metrics"
	"gorm.io/gorm"
)

// 允许的餐次
var mealTypes = map[string]bool{
	"breakfast": true,
	"lunch":     true,
	"dinner":    true,
	"snack":     true,
}

var plainTextPolicy = bluemonday.StrictPolicy()

// TrackingEventInput 是写入追踪记录时的统一入参，按 Category 读取对应字段
type TrackingEventInput struct {
	UserID     string
	Category   string
	RecordedAt time.Time

	// water
	AmountML float64
	Beverage string

	// sleep
	DurationMinutes int
	Quality         int // 0 表示未填写
	BedTime         *time.Time
	WakeTime        *time.Time

	// fitness
	ActivityType   string
	Steps          int
	ActiveMinutes  int
	CaloriesBurned float64
	DistanceM      float64

	// mood
	MoodScore   int
	StressScore int // 0 表示未填写
	MoodLabel   string
	Note        string

	// meal
	MealType string
	FoodName string
	Calories float64
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// TrackingService 负责追踪记录的追加写入与按日读取
type TrackingService struct {
	db       *gorm.DB
	profiles *UserProfileService
	now      func() time.Time
}

// NewTrackingService 构造 TrackingService
func NewTrackingService(gdb *gorm.DB, profiles *UserProfileService) *TrackingService {
	return &TrackingService{db: gdb, profiles: profiles, now: time.Now}
}

// WithClock 在测试中固定当前时间
func (s *TrackingService) WithClock(now func() time.Time) *TrackingService {
	if now != nil {
		s.now = now
	}
	return s
}

// Record 校验并写入一条追踪记录。occurred_on 按用户时区在写入时确定。
func (s *TrackingService) Record(ctx context.Context, input TrackingEventInput) (db.TrackingEvent, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidTrackingEvent)
	}
	source, ok := db.SourceForCategory(input.Category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, input.Category)
	}

	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}
	recordedAt = recordedAt.UTC()

	loc, err := s.profiles.Location(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	day := DayKey(recordedAt, loc)

	event, err := buildTrackingEvent(source.Category, input, day, recordedAt)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, classifyStoreError(fmt.Errorf("record %s event: %w", source.Category, err))
	}
	metrics.RecordTrackingEvent(source.Category)

	return derefEvent(event), nil
}

func buildTrackingEvent(category string, in TrackingEventInput, day string, recordedAt time.Time) (any, error) {
	switch category {
	case db.CategoryWater:
		if in.AmountML <= 0 {
			return nil, fmt.Errorf("%w: amount_ml must be positive", ErrInvalidTrackingEvent)
		}
		return &db.WaterLog{
			UserID:     in.UserID,
			AmountML:   in.AmountML,
			Beverage:   sanitizeText(in.Beverage),
			OccurredOn: day,
			RecordedAt: recordedAt,
		}, nil
	case db.CategorySleep:
		if in.DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidTrackingEvent)
		}
		if in.Quality < 0 || in.Quality > 5 {
			return nil, fmt.Errorf("%w: quality must be between 0 and 5", ErrInvalidTrackingEvent)
		}
		return &db.SleepLog{
			UserID:          in.UserID,
			DurationMinutes: in.DurationMinutes,
			Quality:         optionalScore(in.Quality),
			BedTime:         utcPtr(in.BedTime),
			WakeTime:        utcPtr(in.WakeTime),
			OccurredOn:      day,
			RecordedAt:      recordedAt,
		}, nil
	case db.CategoryFitness:
		if in.Steps < 0 || in.ActiveMinutes < 0 || in.CaloriesBurned < 0 || in.DistanceM < 0 {
			return nil, fmt.Errorf("%w: fitness values must not be negative", ErrInvalidTrackingEvent)
		}
		if in.Steps == 0 && in.ActiveMinutes == 0 && in.CaloriesBurned == 0 && in.DistanceM == 0 {
			return nil, fmt.Errorf("%w: fitness event has no measurement", ErrInvalidTrackingEvent)
		}
		return &db.FitnessLog{
			UserID:         in.UserID,
			ActivityType:   sanitizeText(in.ActivityType),
			Steps:          in.Steps,
			ActiveMinutes:  in.ActiveMinutes,
			CaloriesBurned: in.CaloriesBurned,
			DistanceM:      in.DistanceM,
			OccurredOn:     day,
			RecordedAt:     recordedAt,
		}, nil
	case db.CategoryMood:
		if in.MoodScore < 1 || in.MoodScore > 10 {
			return nil, fmt.Errorf("%w: mood_score must be between 1 and 10", ErrInvalidTrackingEvent)
		}
		if in.StressScore != 0 && (in.StressScore < 1 || in.StressScore > 10) {
			return nil, fmt.Errorf("%w: stress_score must be between 1 and 10", ErrInvalidTrackingEvent)
		}
		return &db.MoodLog{
			UserID:      in.UserID,
			MoodScore:   in.MoodScore,
			StressScore: optionalScore(in.StressScore),
			MoodLabel:   sanitizeText(in.MoodLabel),
			Note:        sanitizeText(in.Note),
			OccurredOn:  day,
			RecordedAt:  recordedAt,
		}, nil
	case db.CategoryMeal:
		mealType := strings.ToLower(strings.TrimSpace(in.MealType))
		if !mealTypes[mealType] {
			return nil, fmt.Errorf("%w: meal_type must be breakfast, lunch, dinner or snack", ErrInvalidTrackingEvent)
		}
		if in.Calories < 0 || in.ProteinG < 0 || in.CarbsG < 0 || in.FatG < 0 {
			return nil, fmt.Errorf("%w: nutrition values must not be negative", ErrInvalidTrackingEvent)
		}
		return &db.MealLog{
			UserID:     in.UserID,
			MealType:   mealType,
			FoodName:   sanitizeText(in.FoodName),
			Calories:   in.Calories,
			ProteinG:   in.ProteinG,
			CarbsG:     in.CarbsG,
			FatG:       in.FatG,
			OccurredOn: day,
			RecordedAt: recordedAt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
}

func derefEvent(event any) db.TrackingEvent {
	switch e := event.(type) {
	case *db.WaterLog:
		return *e
	case *db.SleepLog:
		return *e
	case *db.FitnessLog:
		return *e
	case *db.MoodLog:
		return *e
	case *db.MealLog:
		return *e
	default:
		return nil
	}
}

// ListForDay 返回用户某日某类别的记录，按记录时间升序
func (s *TrackingService) ListForDay(ctx context.Context, userID, category, day string) ([]db.TrackingEvent, error) {
	source, ok := db.SourceForCategory(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if _, err := ParseDay(day); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("user_id = ? AND occurred_on = ?", userID, day).Order("recorded_at ASC, id ASC")

	var events []db.TrackingEvent
	switch source.Category {
	case db.CategoryWater:
		var rows []db.WaterLog
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list water events: %w", err)
		}
		for _, row := range rows {
			events = append(events, row)
		}
	case db.CategorySleep:
		var rows []db.SleepLog
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list sleep events: %w", err)
		}
		for _, row := range rows {
			events = append(events, row)
		}
	case db.CategoryFitness:
		var rows []db.FitnessLog
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list fitness events: %w", err)
		}
		for _, row := range rows {
			events = append(events, row)
		}
	case db.CategoryMood:
		var rows []db.MoodLog
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list mood events: %w", err)
		}
		for _, row := range rows {
			events = append(events, row)
		}
	case db.CategoryMeal:
		var rows []db.MealLog
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("list meal events: %w", err)
		}
		for _, row := range rows {
			events = append(events, row)
		}
	}
	return events, nil
}

// sanitizeText 去掉用户输入中的 HTML，保留纯文本
func sanitizeText(input string) string {
	cleaned := plainTextPolicy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// optionalScore 把未填写的 0 分转为 NULL
func optionalScore(score int) *int {
	if score == 0 {
		return nil
	}
	return &score
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
