package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

type acceptMissionPayload struct {
	Date string `json:"date"` // 2006-01-02，可选
}

// ListMissions 按用户偏好返回任务列表。
// show_completed/sort_by/sort_order 查询参数只覆盖本次请求，不写回偏好。
// 列表读取不触发重算，后台重算失败时返回的是上一次的进度。
func (a *API) ListMissions(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	stored, err := a.engine.Preferences.Get(ctx, userID)
	if err != nil {
		a.handleServiceError(c, err, "获取任务偏好失败")
		return
	}

	showCompleted, err := parseOptionalBool(c, "show_completed")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_preference", "show_completed 只能为 true 或 false")
		return
	}
	pref, err := service.ApplyPreferenceInput(*stored, service.PreferenceInput{
		ShowCompletedMissions: showCompleted,
		SortBy:                optionalString(c, "sort_by"),
		SortOrder:             optionalString(c, "sort_order"),
	})
	if err != nil {
		a.handleServiceError(c, err, "偏好参数不合法")
		return
	}

	filter := service.MissionListFilter{Date: strings.TrimSpace(c.Query("date"))}
	if filter.Date == "today" {
		today, err := a.engine.Profiles.Today(ctx, userID, a.engine.Now())
		if err != nil {
			a.handleServiceError(c, err, "获取用户时区失败")
			return
		}
		filter.Date = today
	}

	missions, err := a.engine.Preferences.ListMissions(ctx, userID, pref, filter)
	if err != nil {
		a.handleServiceError(c, err, "获取任务列表失败")
		return
	}

	items := make([]gin.H, 0, len(missions))
	for _, mission := range missions {
		items = append(items, a.serializeUserMission(mission))
	}

	c.JSON(http.StatusOK, gin.H{
		"missions":   items,
		"total":      len(items),
		"preference": serializePreference(pref),
	})
}

// GetUserMission 返回单个用户任务
func (a *API) GetUserMission(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_id", "无效的用户任务ID")
		return
	}

	mission, err := a.engine.Preferences.GetUserMission(c.Request.Context(), userID, id)
	if err != nil {
		a.handleServiceError(c, err, "获取用户任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": a.serializeUserMission(*mission)})
}

// GetMissionStats 统计用户任务数量与积分，period 取 day/week/month/all
func (a *API) GetMissionStats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := a.engine.Stats.Summarize(c.Request.Context(), userID, strings.TrimSpace(c.Query("period")), strings.TrimSpace(c.Query("date")))
	if err != nil {
		a.handleServiceError(c, err, "统计任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// AcceptMission 用户主动领取任务
func (a *API) AcceptMission(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	missionID, err := parseUintParam(c, "id")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_id", "无效的任务ID")
		return
	}

	var payload acceptMissionPayload
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "请求参数不合法") {
			return
		}
	}

	ctx := c.Request.Context()
	mission, err := a.engine.Assignment.AcceptMission(ctx, userID, missionID, strings.TrimSpace(payload.Date))
	if err != nil {
		a.handleServiceError(c, err, "领取任务失败")
		return
	}

	// 领取当天可能已有记录，立即算一次进度
	if updated, err := a.engine.Progress.UpdateProgress(ctx, mission.ID); err == nil {
		mission = updated
	} else {
		a.logger.WithError(err).WithField("user_mission_id", mission.ID).Warn("initial progress update failed")
	}

	c.JSON(http.StatusCreated, gin.H{"mission": a.serializeUserMission(*mission)})
}

// CancelMission 取消进行中的用户任务
func (a *API) CancelMission(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_id", "无效的用户任务ID")
		return
	}

	mission, err := a.engine.Assignment.CancelMission(c.Request.Context(), userID, id)
	if err != nil {
		a.handleServiceError(c, err, "取消任务失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": a.serializeUserMission(*mission)})
}

// ListCatalog 返回当前可领取的任务定义
func (a *API) ListCatalog(c *gin.Context) {
	missions, err := a.engine.Catalog.List(c.Request.Context(), service.CatalogFilter{
		Category:   strings.TrimSpace(c.Query("category")),
		ActiveOnly: true,
	})
	if err != nil {
		a.handleServiceError(c, err, "获取任务目录失败")
		return
	}

	items := make([]gin.H, 0, len(missions))
	for _, mission := range missions {
		items = append(items, a.serializeDefinition(mission))
	}
	c.JSON(http.StatusOK, gin.H{"missions": items})
}

func (a *API) serializeUserMission(um db.UserMission) gin.H {
	payload := gin.H{
		"id":            um.ID,
		"user_id":       um.UserID,
		"mission_id":    um.MissionID,
		"mission_date":  um.MissionDate,
		"status":        um.Status,
		"current_value": um.CurrentValue,
		"progress":      um.Progress,
		"source":        um.Source,
		"notes":         um.Notes,
		"completed_at":  nil,
		"updated_at":    um.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if um.CompletedAt != nil {
		payload["completed_at"] = um.CompletedAt.UTC().Format(time.RFC3339)
	}

	def := um.Mission
	if def.ID != 0 {
		payload["code"] = def.Code
		payload["title"] = def.Title
		payload["description"] = def.Description
		payload["description_html"] = a.renderDescription(def)
		payload["category"] = def.Category
		payload["sub_category"] = def.SubCategory
		payload["target_value"] = def.TargetValue
		payload["unit"] = def.Unit
		payload["points"] = def.Points
		payload["difficulty"] = def.Difficulty
		payload["period"] = def.Period
	}
	return payload
}

func (a *API) serializeDefinition(def db.MissionDefinition) gin.H {
	return gin.H{
		"id":               def.ID,
		"code":             def.Code,
		"title":            def.Title,
		"description":      def.Description,
		"description_html": a.renderDescription(def),
		"category":         def.Category,
		"sub_category":     def.SubCategory,
		"target_value":     def.TargetValue,
		"unit":             def.Unit,
		"points":           def.Points,
		"difficulty":       def.Difficulty,
		"period":           def.Period,
		"is_active":        def.IsActive,
		"tracking_mapping": def.Mapping(),
		"updated_at":       def.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) renderDescription(def db.MissionDefinition) string {
	if strings.TrimSpace(def.Description) == "" {
		return ""
	}
	rendered, err := service.RenderDescription(def.Description)
	if err != nil {
		a.logger.WithError(err).WithField("mission_id", def.ID).Warn("render mission description failed")
		return ""
	}
	return rendered
}
