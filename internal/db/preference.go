package db

import "time"

// 列表排序字段
const (
	SortByProgress   = "progress"
	SortByDifficulty = "difficulty"
	SortByPoints     = "points"
	SortByCategory   = "category"
)

// 排序方向
const (
	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// UserMissionPreference 每个用户一行，首次读取时按默认值创建。
type UserMissionPreference struct {
	UserID                string `gorm:"primaryKey;size:64"`
	ShowCompletedMissions bool   `gorm:"not null"`
	SortBy                string `gorm:"size:16;not null"`
	SortOrder             string `gorm:"size:4;not null"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DefaultMissionPreference 返回默认偏好：隐藏已完成，按进度降序。
func DefaultMissionPreference(userID string) UserMissionPreference {
	return UserMissionPreference{
		UserID:                userID,
		ShowCompletedMissions: false,
		SortBy:                SortByProgress,
		SortOrder:             SortOrderDesc,
	}
}

// UserProfile 保存用户时区，决定追踪与任务的日界线。
type UserProfile struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Timezone  string `gorm:"size:64;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
