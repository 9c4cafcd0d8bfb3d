package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

// HealthCheck 提供监控系统使用的健康检查端点。
func (a *API) HealthCheck(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "database handle unavailable",
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "database unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "up",
	})
}

type reconcileRequest struct {
	Date string `json:"date"`
}

// RunReconcile 手动触发某日的对账与过期处理，date 为空时取默认时区的昨天
func (a *API) RunReconcile(c *gin.Context) {
	var payload reconcileRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "请求参数不合法") {
			return
		}
	}

	day := strings.TrimSpace(payload.Date)
	if day == "" {
		loc := a.engine.Profiles.DefaultLocation()
		day = a.engine.Now().In(loc).AddDate(0, 0, -1).Format(db.DayLayout)
	}
	if _, err := service.ParseDay(day); err != nil {
		a.handleServiceError(c, err, "日期不合法")
		return
	}

	report, err := a.engine.RunNightly(c.Request.Context(), day)
	if err != nil {
		a.handleServiceError(c, err, "对账失败")
		return
	}

	failures := make([]gin.H, 0, len(report.Failures))
	for _, f := range report.Failures {
		item := gin.H{
			"user_mission_id": f.UserMissionID,
			"mission_id":      f.MissionID,
			"user_id":         f.UserID,
			"kind":            f.Kind,
		}
		if f.Err != nil {
			item["error"] = f.Err.Error()
		}
		failures = append(failures, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":    report.RunID,
		"date":      day,
		"total":     report.Total,
		"updated":   report.Updated,
		"completed": report.Completed,
		"expired":   report.Expired,
		"failures":  failures,
	})
}
