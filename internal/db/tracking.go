package db

import (
	"time"

	"gorm.io/gorm"
)

// 追踪类别
const (
	CategoryWater   = "water"
	CategorySleep   = "sleep"
	CategoryFitness = "fitness"
	CategoryMood    = "mood"
	CategoryMeal    = "meal"
)

// DayLayout 是 occurred_on / mission_date 的存储格式。
const DayLayout = "2006-01-02"

// TrackingEvent 是各类别追踪记录的公共视图。
// 记录只追加不修改，纠正数据通过追加新记录完成。
type TrackingEvent interface {
	TrackingCategory() string
	EventUserID() string
	EventDay() string
	EventRecordedAt() time.Time
}

// WaterLog 饮水记录
type WaterLog struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"size:64;not null;index:idx_water_user_day,priority:1"`
	AmountML   float64   `gorm:"column:amount_ml;not null"`
	Beverage   string    `gorm:"size:32"`
	OccurredOn string    `gorm:"size:10;not null;index:idx_water_user_day,priority:2"`
	RecordedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time
}

// TableName 固定为规范表名
func (WaterLog) TableName() string { return "water_tracking" }

// SleepLog 睡眠记录，Hours 由 DurationMinutes 推导
type SleepLog struct {
	ID              uint      `gorm:"primaryKey"`
	UserID          string    `gorm:"size:64;not null;index:idx_sleep_user_day,priority:1"`
	DurationMinutes int       `gorm:"not null"`
	Hours           float64   `gorm:"not null"`
	Quality         *int      // 1-5，未填写时为 NULL，不参与 AVG
	BedTime         *time.Time
	WakeTime        *time.Time
	OccurredOn      string    `gorm:"size:10;not null;index:idx_sleep_user_day,priority:2"`
	RecordedAt      time.Time `gorm:"not null"`
	CreatedAt       time.Time
}

func (SleepLog) TableName() string { return "sleep_tracking" }

// BeforeCreate 同步小时数
func (s *SleepLog) BeforeCreate(tx *gorm.DB) error {
	s.Hours = float64(s.DurationMinutes) / 60.0
	return nil
}

// FitnessLog 运动记录
type FitnessLog struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"size:64;not null;index:idx_fitness_user_day,priority:1"`
	ActivityType   string    `gorm:"size:32"`
	Steps          int       `gorm:"not null;default:0"`
	ActiveMinutes  int       `gorm:"not null;default:0"`
	CaloriesBurned float64   `gorm:"not null;default:0"`
	DistanceM      float64   `gorm:"column:distance_m;not null;default:0"`
	OccurredOn     string    `gorm:"size:10;not null;index:idx_fitness_user_day,priority:2"`
	RecordedAt     time.Time `gorm:"not null"`
	CreatedAt      time.Time
}

func (FitnessLog) TableName() string { return "fitness_tracking" }

// MoodLog 情绪/压力记录，分值范围 1-10
type MoodLog struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      string    `gorm:"size:64;not null;index:idx_mood_user_day,priority:1"`
	MoodScore   int       `gorm:"not null"`
	StressScore *int      // 未填写时为 NULL
	MoodLabel   string    `gorm:"size:32"`
	Note        string
	OccurredOn  string    `gorm:"size:10;not null;index:idx_mood_user_day,priority:2"`
	RecordedAt  time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (MoodLog) TableName() string { return "mood_tracking" }

// MealLog 饮食记录，meal_type 取 breakfast/lunch/dinner/snack
type MealLog struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"size:64;not null;index:idx_meal_user_day,priority:1"`
	MealType   string    `gorm:"size:16;not null"`
	FoodName   string    `gorm:"size:128"`
	Calories   float64   `gorm:"not null;default:0"`
	ProteinG   float64   `gorm:"column:protein_g;not null;default:0"`
	CarbsG     float64   `gorm:"column:carbs_g;not null;default:0"`
	FatG       float64   `gorm:"column:fat_g;not null;default:0"`
	OccurredOn string    `gorm:"size:10;not null;index:idx_meal_user_day,priority:2"`
	RecordedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time
}

func (MealLog) TableName() string { return "meal_tracking" }

func (w WaterLog) TrackingCategory() string { return CategoryWater }
func (w WaterLog) EventUserID() string { return w.UserID }
func (w WaterLog) EventDay() string { return w.OccurredOn }
func (w WaterLog) EventRecordedAt() time.Time { return w.RecordedAt }
func (s SleepLog) TrackingCategory() string { return CategorySleep }
func (s SleepLog) EventUserID() string { return s.UserID }
func (s SleepLog) EventDay() string { return s.OccurredOn }
func (s SleepLog) EventRecordedAt() time.Time { return s.RecordedAt }
func (f FitnessLog) TrackingCategory() string { return CategoryFitness }
func (f FitnessLog) EventUserID() string { return f.UserID }
func (f FitnessLog) EventDay() string { return f.OccurredOn }
func (f FitnessLog) EventRecordedAt() time.Time { return f.RecordedAt }
func (m MoodLog) TrackingCategory() string { return CategoryMood }
func (m MoodLog) EventUserID() string { return m.UserID }
func (m MoodLog) EventDay() string { return m.OccurredOn }
func (m MoodLog) EventRecordedAt() time.Time { return m.RecordedAt }
func (m MealLog) TrackingCategory() string { return CategoryMeal }
func (m MealLog) EventUserID() string { return m.UserID }
func (m MealLog) EventDay() string { return m.OccurredOn }
func (m MealLog) EventRecordedAt() time.Time { return m.RecordedAt }
