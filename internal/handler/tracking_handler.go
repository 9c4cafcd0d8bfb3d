package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

type trackingPayload struct {
	RecordedAt *time.Time `json:"recorded_at"`

	AmountML float64 `json:"amount_ml"`
	Beverage string  `json:"beverage"`

	DurationMinutes int        `json:"duration_minutes"`
	Quality         int        `json:"quality"`
	BedTime         *time.Time `json:"bed_time"`
	WakeTime        *time.Time `json:"wake_time"`

	ActivityType   string  `json:"activity_type"`
	Steps          int     `json:"steps"`
	ActiveMinutes  int     `json:"active_minutes"`
	CaloriesBurned float64 `json:"calories_burned"`
	DistanceM      float64 `json:"distance_m"`

	MoodScore   int    `json:"mood_score"`
	StressScore int    `json:"stress_score"`
	MoodLabel   string `json:"mood_label"`
	Note        string `json:"note"`

	MealType string  `json:"meal_type"`
	FoodName string  `json:"food_name"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

func (p trackingPayload) toInput(userID, category string) service.TrackingEventInput {
	input := service.TrackingEventInput{
		UserID:          userID,
		Category:        category,
		AmountML:        p.AmountML,
		Beverage:        p.Beverage,
		DurationMinutes: p.DurationMinutes,
		Quality:         p.Quality,
		BedTime:         p.BedTime,
		WakeTime:        p.WakeTime,
		ActivityType:    p.ActivityType,
		Steps:           p.Steps,
		ActiveMinutes:   p.ActiveMinutes,
		CaloriesBurned:  p.CaloriesBurned,
		DistanceM:       p.DistanceM,
		MoodScore:       p.MoodScore,
		StressScore:     p.StressScore,
		MoodLabel:       p.MoodLabel,
		Note:            p.Note,
		MealType:        p.MealType,
		FoodName:        p.FoodName,
		Calories:        p.Calories,
		ProteinG:        p.ProteinG,
		CarbsG:          p.CarbsG,
		FatG:            p.FatG,
	}
	if p.RecordedAt != nil {
		input.RecordedAt = *p.RecordedAt
	}
	return input
}

// RecordTracking 写入一条追踪记录，并触发任务分配与进度重算。
// 重算失败不影响写入结果。
func (a *API) RecordTracking(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var payload trackingPayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	category := strings.ToLower(strings.TrimSpace(c.Param("category")))
	event, err := a.engine.Track(c.Request.Context(), payload.toInput(userID, category))
	if err != nil {
		a.handleServiceError(c, err, "保存追踪记录失败")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": serializeTrackingEvent(event)})
}

// ListTracking 返回用户某日某类别的记录，date 为空时取用户当地今天
func (a *API) ListTracking(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	day := strings.TrimSpace(c.Query("date"))
	if day == "" {
		today, err := a.engine.Profiles.Today(ctx, userID, a.engine.Now())
		if err != nil {
			a.handleServiceError(c, err, "获取用户时区失败")
			return
		}
		day = today
	}

	events, err := a.engine.Tracking.ListForDay(ctx, userID, c.Param("category"), day)
	if err != nil {
		a.handleServiceError(c, err, "获取追踪记录失败")
		return
	}

	items := make([]gin.H, 0, len(events))
	for _, event := range events {
		items = append(items, serializeTrackingEvent(event))
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "events": items})
}

func serializeTrackingEvent(event db.TrackingEvent) gin.H {
	payload := gin.H{
		"category":    event.TrackingCategory(),
		"user_id":     event.EventUserID(),
		"occurred_on": event.EventDay(),
		"recorded_at": event.EventRecordedAt().UTC().Format(time.RFC3339),
	}

	switch e := event.(type) {
	case db.WaterLog:
		payload["id"] = e.ID
		payload["amount_ml"] = e.AmountML
		payload["beverage"] = e.Beverage
	case db.SleepLog:
		payload["id"] = e.ID
		payload["duration_minutes"] = e.DurationMinutes
		payload["hours"] = e.Hours
		payload["quality"] = e.Quality
		if e.BedTime != nil {
			payload["bed_time"] = e.BedTime.UTC().Format(time.RFC3339)
		}
		if e.WakeTime != nil {
			payload["wake_time"] = e.WakeTime.UTC().Format(time.RFC3339)
		}
	case db.FitnessLog:
		payload["id"] = e.ID
		payload["activity_type"] = e.ActivityType
		payload["steps"] = e.Steps
		payload["active_minutes"] = e.ActiveMinutes
		payload["calories_burned"] = e.CaloriesBurned
		payload["distance_m"] = e.DistanceM
	case db.MoodLog:
		payload["id"] = e.ID
		payload["mood_score"] = e.MoodScore
		payload["stress_score"] = e.StressScore
		payload["mood_label"] = e.MoodLabel
		payload["note"] = e.Note
	case db.MealLog:
		payload["id"] = e.ID
		payload["meal_type"] = e.MealType
		payload["food_name"] = e.FoodName
		payload["calories"] = e.Calories
		payload["protein_g"] = e.ProteinG
		payload["carbs_g"] = e.CarbsG
		payload["fat_g"] = e.FatG
	}
	return payload
}
