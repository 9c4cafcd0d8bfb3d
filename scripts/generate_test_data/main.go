package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/wellnesslog/internal/config"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/service"
)

// 测试数据生成器：导入任务目录，为演示用户生成最近几天的追踪记录，
// 并按天推进时钟，使自动分配、进度重算与过期都按真实流程发生。
func main() {
	cfg := config.Load()

	var catalogFile string
	var usersFlag string
	var days int
	flag.StringVar(&catalogFile, "catalog", "config/catalog.yaml", "mission catalog yaml")
	flag.StringVar(&usersFlag, "users", "demo-alice,demo-bob", "comma-separated user ids")
	flag.IntVar(&days, "days", 7, "number of days to generate, ending today")
	flag.Parse()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		logger.WithError(err).Warn("invalid DEFAULT_TIMEZONE, falling back to UTC")
	}
	engine := service.NewMissionEngine(db.DB, opts, logger)
	ctx := context.Background()

	fmt.Println("开始生成测试数据...")

	loaded, err := engine.Catalog.LoadCatalogFile(ctx, catalogFile)
	if err != nil {
		log.Fatal("导入任务目录失败:", err)
	}
	fmt.Printf("✅ 任务目录: 新增 %d, 更新 %d\n", loaded.Created, loaded.Updated)

	result, err := generate(ctx, engine, splitCSV(usersFlag), days, time.Now())
	if err != nil {
		log.Fatal("生成追踪记录失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("用户: %s\n", strings.Join(result.Users, ", "))
	fmt.Printf("追踪记录: %d 条\n", result.Events)
	fmt.Printf("过期任务: %d 个\n", result.Expired)
}

type generateResult struct {
	Users   []string
	Events  int
	Expired int
}

// generate 从 end 往前 days 天逐日写入记录，最后对昨天对账一次
func generate(ctx context.Context, engine *service.MissionEngine, users []string, days int, end time.Time) (generateResult, error) {
	result := generateResult{Users: users}
	if len(users) == 0 || days <= 0 {
		return result, nil
	}

	end = end.UTC()
	today := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	for offset := days - 1; offset >= 0; offset-- {
		dayStart := today.AddDate(0, 0, -offset)
		clock := dayStart.Add(21 * time.Hour)
		if offset == 0 {
			clock = end
		}
		engine.WithClock(func() time.Time { return clock })

		for i, userID := range users {
			for _, input := range dailyEvents(userID, i, offset, dayStart) {
				if input.RecordedAt.After(clock) {
					continue
				}
				if _, err := engine.Track(ctx, input); err != nil {
					return result, fmt.Errorf("track %s for %s on %s: %w", input.Category, userID, dayStart.Format(db.DayLayout), err)
				}
				result.Events++
			}
		}
	}

	engine.WithClock(func() time.Time { return end })
	report, err := engine.RunNightly(ctx, today.AddDate(0, 0, -1).Format(db.DayLayout))
	if err != nil {
		return result, fmt.Errorf("reconcile: %w", err)
	}
	result.Expired = report.Expired
	return result, nil
}

// dailyEvents 按用户序号与日期偏移生成确定性的记录，便于复现
func dailyEvents(userID string, index, offset int, dayStart time.Time) []service.TrackingEventInput {
	seed := index + offset
	at := func(hour, minute int) time.Time {
		return dayStart.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	}

	events := []service.TrackingEventInput{
		{UserID: userID, Category: db.CategorySleep, DurationMinutes: 360 + 30*(seed%4), Quality: 3 + offset%3, RecordedAt: at(7, 0)},
		{UserID: userID, Category: db.CategoryWater, AmountML: 500, Beverage: "water", RecordedAt: at(8, 0)},
		{UserID: userID, Category: db.CategoryMeal, MealType: "breakfast", FoodName: "Oatmeal", Calories: 350, ProteinG: 20, CarbsG: 50, FatG: 8, RecordedAt: at(8, 30)},
		{UserID: userID, Category: db.CategoryMood, MoodScore: 5 + seed%5, StressScore: 3 + offset%4, MoodLabel: "morning", RecordedAt: at(9, 0)},
		{UserID: userID, Category: db.CategoryWater, AmountML: float64(500 + 250*(seed%3)), Beverage: "tea", RecordedAt: at(11, 0)},
		{UserID: userID, Category: db.CategoryMeal, MealType: "lunch", FoodName: "Chicken salad", Calories: 550, ProteinG: 25, CarbsG: 30, FatG: 18, RecordedAt: at(12, 30)},
		{UserID: userID, Category: db.CategoryFitness, ActivityType: "walk", Steps: 3000 + 1500*(seed%4), ActiveMinutes: 20 + 5*(offset%3), DistanceM: 2500, RecordedAt: at(18, 0)},
		{UserID: userID, Category: db.CategoryWater, AmountML: 400, Beverage: "water", RecordedAt: at(19, 0)},
		{UserID: userID, Category: db.CategoryMood, MoodScore: 6 + seed%4, MoodLabel: "evening", RecordedAt: at(20, 0)},
	}
	if offset%2 == 0 {
		events = append(events, service.TrackingEventInput{
			UserID: userID, Category: db.CategoryMeal, MealType: "dinner", FoodName: "Salmon", Calories: 600, ProteinG: 30, CarbsG: 40, FatG: 20, RecordedAt: at(20, 30),
		})
	}
	return events
}

func splitCSV(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
