package db

import (
	"slices"
	"strings"
)

// DateColumnKind 区分按日期字符串过滤还是按时间戳区间过滤。
type DateColumnKind int

const (
	// DateColumnDay 表示 YYYY-MM-DD 字符串列，日界线在写入时已按用户时区确定。
	DateColumnDay DateColumnKind = iota + 1
	// DateColumnTimestamp 表示 UTC 时间戳列，查询时按用户时区换算当日区间。
	DateColumnTimestamp
)

// TrackingSource 描述一张追踪表中允许被任务映射引用的列。
// 解析器拼装查询时只使用这里登记过的标识符。
type TrackingSource struct {
	Category       string
	Table          string
	Model          any
	DateColumns    map[string]DateColumnKind
	NumericColumns []string
	TextColumns    []string
}

var trackingSources = []TrackingSource{
	{
		Category:       CategoryWater,
		Table:          "water_tracking",
		Model:          &WaterLog{},
		DateColumns:    defaultDateColumns(),
		NumericColumns: []string{"id", "amount_ml"},
		TextColumns:    []string{"beverage", "occurred_on"},
	},
	{
		Category:       CategorySleep,
		Table:          "sleep_tracking",
		Model:          &SleepLog{},
		DateColumns:    defaultDateColumns(),
		NumericColumns: []string{"id", "duration_minutes", "hours", "quality"},
		TextColumns:    []string{"occurred_on"},
	},
	{
		Category:       CategoryFitness,
		Table:          "fitness_tracking",
		Model:          &FitnessLog{},
		DateColumns:    defaultDateColumns(),
		NumericColumns: []string{"id", "steps", "active_minutes", "calories_burned", "distance_m"},
		TextColumns:    []string{"activity_type", "occurred_on"},
	},
	{
		Category:       CategoryMood,
		Table:          "mood_tracking",
		Model:          &MoodLog{},
		DateColumns:    defaultDateColumns(),
		NumericColumns: []string{"id", "mood_score", "stress_score"},
		TextColumns:    []string{"mood_label", "occurred_on"},
	},
	{
		Category:       CategoryMeal,
		Table:          "meal_tracking",
		Model:          &MealLog{},
		DateColumns:    defaultDateColumns(),
		NumericColumns: []string{"id", "calories", "protein_g", "carbs_g", "fat_g"},
		TextColumns:    []string{"meal_type", "food_name", "occurred_on"},
	},
}

func defaultDateColumns() map[string]DateColumnKind {
	return map[string]DateColumnKind{
		"occurred_on": DateColumnDay,
		"recorded_at": DateColumnTimestamp,
	}
}

// TrackingSources 返回全部已登记的追踪表。
func TrackingSources() []TrackingSource {
	return slices.Clone(trackingSources)
}

// LookupSource 按表名查找追踪表。
func LookupSource(table string) (TrackingSource, bool) {
	name := strings.TrimSpace(strings.ToLower(table))
	for _, source := range trackingSources {
		if source.Table == name {
			return source, true
		}
	}
	return TrackingSource{}, false
}

// SourceForCategory 按类别查找规范追踪表。
func SourceForCategory(category string) (TrackingSource, bool) {
	name := strings.TrimSpace(strings.ToLower(category))
	for _, source := range trackingSources {
		if source.Category == name {
			return source, true
		}
	}
	return TrackingSource{}, false
}

// IsNumeric 判断列是否可用于 SUM/AVG。
func (s TrackingSource) IsNumeric(column string) bool {
	return slices.Contains(s.NumericColumns, column)
}

// HasColumn 判断列是否可被 COUNT/COUNT_DISTINCT 或过滤条件引用。
func (s TrackingSource) HasColumn(column string) bool {
	if s.IsNumeric(column) || slices.Contains(s.TextColumns, column) {
		return true
	}
	_, ok := s.DateColumns[column]
	return ok
}

// DateKind 返回日期列类型。
func (s TrackingSource) DateKind(column string) (DateColumnKind, bool) {
	kind, ok := s.DateColumns[column]
	return kind, ok
}
