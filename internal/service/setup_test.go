package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/logging"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 2025-03-12 是周三，所在周的周一为 2025-03-10
var testNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

const testDay = "2025-03-12"

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:service-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func testEngineOptions() EngineOptions {
	return EngineOptions{
		DefaultLocation:     time.UTC,
		StarterMissionLimit: 3,
		ResolverTimeout:     time.Second,
		Retry:               RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
		BatchConcurrency:    4,
	}
}

func newTestEngine(t *testing.T, now time.Time) (*MissionEngine, *gorm.DB) {
	t.Helper()
	gdb := openServiceTestDB(t)
	engine := NewMissionEngine(gdb, testEngineOptions(), logging.Discard())
	engine.WithClock(func() time.Time { return now })
	return engine, gdb
}

func waterMapping() db.TrackingMapping {
	return db.TrackingMapping{Table: "water_tracking", Column: "amount_ml", Aggregation: db.AggregationSum}
}

func createDefinition(t *testing.T, gdb *gorm.DB, def db.MissionDefinition) db.MissionDefinition {
	t.Helper()
	if def.Code == "" {
		def.Code = fmt.Sprintf("mission-%d", time.Now().UnixNano())
	}
	if def.Title == "" {
		def.Title = def.Code
	}
	if def.Period == "" {
		def.Period = db.PeriodDaily
	}
	if def.Difficulty == 0 {
		def.Difficulty = 1
	}
	require.NoError(t, gdb.Create(&def).Error)
	return def
}

func waterDefinition(t *testing.T, gdb *gorm.DB, code string, target float64) db.MissionDefinition {
	t.Helper()
	return createDefinition(t, gdb, db.MissionDefinition{
		Code:            code,
		Category:        db.CategoryWater,
		TargetValue:     target,
		Unit:            "ml",
		Points:          10,
		IsActive:        true,
		TrackingMapping: datatypes.NewJSONType(waterMapping()),
	})
}

func assignMission(t *testing.T, gdb *gorm.DB, userID string, def db.MissionDefinition, day string) db.UserMission {
	t.Helper()
	um := db.UserMission{
		UserID:      userID,
		MissionID:   def.ID,
		MissionDate: day,
		Status:      db.MissionStatusActive,
		Source:      db.MissionSourceManual,
		Version:     1,
	}
	require.NoError(t, gdb.Create(&um).Error)
	return um
}

func recordWater(t *testing.T, engine *MissionEngine, userID string, amount float64, at time.Time) {
	t.Helper()
	_, err := engine.Tracking.Record(context.Background(), TrackingEventInput{
		UserID:     userID,
		Category:   db.CategoryWater,
		AmountML:   amount,
		RecordedAt: at,
	})
	require.NoError(t, err)
}

func reloadMission(t *testing.T, gdb *gorm.DB, id uint) db.UserMission {
	t.Helper()
	var um db.UserMission
	require.NoError(t, gdb.First(&um, id).Error)
	return um
}
