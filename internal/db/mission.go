package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 聚合函数
const (
	AggregationSum           = "SUM"
	AggregationAvg           = "AVG"
	AggregationCount         = "COUNT"
	AggregationCountDistinct = "COUNT_DISTINCT"
)

// 任务周期
const (
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"
)

// UserMission 状态。completed/expired/cancelled 为终态，不可重新打开。
const (
	MissionStatusActive    = "active"
	MissionStatusCompleted = "completed"
	MissionStatusExpired   = "expired"
	MissionStatusCancelled = "cancelled"
)

// 任务来源
const (
	MissionSourceAuto   = "auto"
	MissionSourceManual = "manual"
)

// FilterClause 是追踪映射里的结构化过滤条件，取代历史上的 SQL 片段字符串。
// Op 取 eq/ne/gt/gte/lt/lte/in，Value 在 in 时为数组。
type FilterClause struct {
	Field string `json:"field" yaml:"field"`
	Op    string `json:"op" yaml:"op"`
	Value any    `json:"value" yaml:"value"`
}

// TrackingMapping 把任务绑定到某张追踪表的某一列及聚合方式。
type TrackingMapping struct {
	Table       string         `json:"table" yaml:"table"`
	Column      string         `json:"column" yaml:"column"`
	Aggregation string         `json:"aggregation" yaml:"aggregation"`
	DateColumn  string         `json:"date_column" yaml:"date_column"`
	Filters     []FilterClause `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// MissionDefinition 任务目录中的静态定义，由后台维护，对引擎只读。
type MissionDefinition struct {
	gorm.Model
	Code            string  `gorm:"size:64;uniqueIndex;not null"`
	Title           string  `gorm:"size:128;not null"`
	Description     string  `gorm:"type:text"`
	Category        string  `gorm:"size:32;not null;index"`
	SubCategory     string  `gorm:"size:32"`
	TargetValue     float64 `gorm:"not null"`
	Unit            string  `gorm:"size:32"`
	Points          int
	Difficulty      int     // 1 最简单
	Period          string  `gorm:"size:16;not null"`
	IsActive        bool    `gorm:"not null;index"`
	TrackingMapping datatypes.JSONType[TrackingMapping]
}

// Mapping 返回解码后的追踪映射。
func (m MissionDefinition) Mapping() TrackingMapping {
	return m.TrackingMapping.Data()
}

// UserMission 用户在某一天（周任务为周一）的任务实例。
// (user_id, mission_id, mission_date) 唯一，Version 用于乐观并发控制。
type UserMission struct {
	ID           uint              `gorm:"primaryKey"`
	UserID       string            `gorm:"size:64;not null;uniqueIndex:idx_user_mission_day,priority:1;index:idx_user_mission_user_date,priority:1"`
	MissionID    uint              `gorm:"not null;uniqueIndex:idx_user_mission_day,priority:2"`
	Mission      MissionDefinition `gorm:"constraint:OnDelete:CASCADE"`
	MissionDate  string            `gorm:"size:10;not null;uniqueIndex:idx_user_mission_day,priority:3;index:idx_user_mission_user_date,priority:2"`
	Status       string            `gorm:"size:16;not null;index"`
	CurrentValue float64           `gorm:"not null"`
	Progress     int               `gorm:"not null"`
	CompletedAt  *time.Time
	Notes        string `gorm:"type:text"`
	Source       string `gorm:"size:16"`
	Version      int    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsTerminal 判断是否处于终态。
func (m UserMission) IsTerminal() bool {
	return IsTerminalStatus(m.Status)
}

// IsTerminalStatus 判断状态是否为终态。
func IsTerminalStatus(status string) bool {
	switch status {
	case MissionStatusCompleted, MissionStatusExpired, MissionStatusCancelled:
		return true
	default:
		return false
	}
}
