package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellnesslog/internal/db"
	"gorm.io/datatypes"
)

func TestPreferenceGetCreatesDefaults(t *testing.T) {
	engine, gdb := newTestEngine(t, testNow)
	ctx := context.Background()

	pref, err := engine.Preferences.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, pref.ShowCompletedMissions)
	assert.Equal(t, db.SortByProgress, pref.SortBy)
	assert.Equal(t, db.SortOrderDesc, pref.SortOrder)

	_, err = engine.Preferences.Get(ctx, "u1")
	require.NoError(t, err)

	var count int64
	require.NoError(t, gdb.Model(&db.UserMissionPreference{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPreferenceUpdate(t *testing.T) {
	engine, _ := newTestEngine(t, testNow)
	ctx := context.Background()

	show := true
	sortBy := " Points "
	order := "ASC"
	pref, err := engine.Preferences.Update(ctx, "u1", PreferenceInput{
		ShowCompletedMissions: &show,
		SortBy:                &sortBy,
		SortOrder:             &order,
	})
	require.NoError(t, err)
	assert.True(t, pref.ShowCompletedMissions)
	assert.Equal(t, db.SortByPoints, pref.SortBy)
	assert.Equal(t, db.SortOrderAsc, pref.SortOrder)

	// 未提供的字段保持不变
	hide := false
	pref, err = engine.Preferences.Update(ctx, "u1", PreferenceInput{ShowCompletedMissions: &hide})
	require.NoError(t, err)
	assert.False(t, pref.ShowCompletedMissions)
	assert.Equal(t, db.SortByPoints, pref.SortBy)

	bad := "title"
	_, err = engine.Preferences.Update(ctx, "u1", PreferenceInput{SortBy: &bad})
	assert.ErrorIs(t, err, ErrInvalidPreference)

	badOrder := "sideways"
	_, err = engine.Preferences.Update(ctx, "u1", PreferenceInput{SortOrder: &badOrder})
	assert.ErrorIs(t, err, ErrInvalidPreference)

	_, err = engine.Preferences.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPreference)
}

func TestListMissionsHidesCompletedByDefault(t *testing.T) {
	engine, gdb := newTestEngine(t, testNow)
	ctx := context.Background()

	small := waterDefinition(t, gdb, "water-500", 500)
	big := waterDefinition(t, gdb, "water-3000", 3000)
	smallMission := assignMission(t, gdb, "u1", small, testDay)
	bigMission := assignMission(t, gdb, "u1", big, testDay)

	recordWater(t, engine, "u1", 600, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC))
	_, err := engine.Progress.Reconcile(ctx, testDay)
	require.NoError(t, err)
	require.Equal(t, db.MissionStatusCompleted, reloadMission(t, gdb, smallMission.ID).Status)

	pref, err := engine.Preferences.Get(ctx, "u1")
	require.NoError(t, err)

	hidden, err := engine.Preferences.ListMissions(ctx, "u1", *pref, MissionListFilter{})
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.Equal(t, bigMission.ID, hidden[0].ID)
	assert.Equal(t, "water-3000", hidden[0].Mission.Code)

	pref.ShowCompletedMissions = true
	shown, err := engine.Preferences.ListMissions(ctx, "u1", *pref, MissionListFilter{})
	require.NoError(t, err)
	require.Len(t, shown, 2)
	// 进度降序时已完成任务进度更高，但仍排在进行中任务之后
	assert.Equal(t, bigMission.ID, shown[0].ID)
	assert.Equal(t, smallMission.ID, shown[1].ID)
}

func TestListMissionsDateFilter(t *testing.T) {
	engine, gdb := newTestEngine(t, testNow)

	daily := waterDefinition(t, gdb, "water-daily", 2000)
	weekly := createDefinition(t, gdb, db.MissionDefinition{
		Code:            "water-week",
		Category:        db.CategoryWater,
		TargetValue:     10000,
		Period:          db.PeriodWeekly,
		IsActive:        true,
		TrackingMapping: datatypes.NewJSONType(waterMapping()),
	})
	today := assignMission(t, gdb, "u1", daily, testDay)
	assignMission(t, gdb, "u1", daily, "2025-03-11")
	week := assignMission(t, gdb, "u1", weekly, "2025-03-10")
	assignMission(t, gdb, "u2", daily, testDay)

	missions, err := engine.Preferences.ListMissions(context.Background(), "u1", db.DefaultMissionPreference("u1"), MissionListFilter{Date: testDay})
	require.NoError(t, err)

	ids := []uint{}
	for _, m := range missions {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []uint{today.ID, week.ID}, ids)

	_, err = engine.Preferences.ListMissions(context.Background(), "u1", db.DefaultMissionPreference("u1"), MissionListFilter{Date: "bad"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestSortMissions(t *testing.T) {
	base := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
	mission := func(id uint, status string, progress, difficulty, points int, category string, updated time.Duration) db.UserMission {
		return db.UserMission{
			ID:        id,
			Status:    status,
			Progress:  progress,
			UpdatedAt: base.Add(updated),
			Mission:   db.MissionDefinition{Difficulty: difficulty, Points: points, Category: category},
		}
	}
	input := []db.UserMission{
		mission(1, db.MissionStatusCompleted, 100, 1, 50, "water", 0),
		mission(2, db.MissionStatusActive, 20, 3, 10, "sleep", 0),
		mission(3, db.MissionStatusActive, 80, 2, 30, "meal", time.Minute),
		mission(4, db.MissionStatusActive, 20, 1, 10, "water", time.Hour),
		mission(5, db.MissionStatusExpired, 40, 2, 20, "fitness", 0),
	}

	tests := []struct {
		name  string
		pref  db.UserMissionPreference
		order []uint
	}{
		{
			name:  "progress desc ties by recent update",
			pref:  db.UserMissionPreference{SortBy: db.SortByProgress, SortOrder: db.SortOrderDesc},
			order: []uint{3, 4, 2, 1, 5},
		},
		{
			name:  "progress asc",
			pref:  db.UserMissionPreference{SortBy: db.SortByProgress, SortOrder: db.SortOrderAsc},
			order: []uint{4, 2, 3, 5, 1},
		},
		{
			name:  "difficulty asc",
			pref:  db.UserMissionPreference{SortBy: db.SortByDifficulty, SortOrder: db.SortOrderAsc},
			order: []uint{4, 3, 2, 1, 5},
		},
		{
			name:  "points desc",
			pref:  db.UserMissionPreference{SortBy: db.SortByPoints, SortOrder: db.SortOrderDesc},
			order: []uint{3, 4, 2, 1, 5},
		},
		{
			name:  "category asc",
			pref:  db.UserMissionPreference{SortBy: db.SortByCategory, SortOrder: db.SortOrderAsc},
			order: []uint{3, 2, 4, 5, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missions := append([]db.UserMission(nil), input...)
			SortMissions(missions, tt.pref)

			got := make([]uint, 0, len(missions))
			for _, m := range missions {
				got = append(got, m.ID)
			}
			assert.Equal(t, tt.order, got)
		})
	}
}
