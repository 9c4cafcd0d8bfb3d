package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wellnesslog/internal/config"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/service"
)

// 手动对账：重算指定日期的任务进度并处理过期任务。
// 未指定 -date 时对默认时区的昨天执行，与夜间调度一致。
func main() {
	cfg := config.Load()

	var dbPath string
	var day string
	flag.StringVar(&dbPath, "db", cfg.DatabasePath, "sqlite db path")
	flag.StringVar(&day, "date", "", "day to reconcile (YYYY-MM-DD), defaults to yesterday")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := db.Init(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "init db: %v\n", err)
		os.Exit(1)
	}

	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		logger.WithError(err).Warn("invalid DEFAULT_TIMEZONE, falling back to UTC")
	}
	engine := service.NewMissionEngine(db.DB, opts, logger)

	day = strings.TrimSpace(day)
	if day == "" {
		day = time.Now().In(opts.DefaultLocation).AddDate(0, 0, -1).Format(db.DayLayout)
	}

	report, err := engine.RunNightly(context.Background(), day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile %s: %v\n", day, err)
		os.Exit(1)
	}

	fmt.Printf("run %s for %s: total=%d updated=%d completed=%d unchanged=%d expired=%d failed=%d\n",
		report.RunID, day, report.Total, report.Updated, report.Completed, report.Unchanged, report.Expired, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Printf("  user_mission=%d mission=%d user=%s kind=%s: %v\n", f.UserMissionID, f.MissionID, f.UserID, f.Kind, f.Err)
	}
	if report.ConfigurationErrors() > 0 {
		os.Exit(2)
	}
}
