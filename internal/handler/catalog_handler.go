package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

type missionDefinitionPayload struct {
	Code            string             `json:"code"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Category        string             `json:"category"`
	SubCategory     string             `json:"sub_category"`
	TargetValue     float64            `json:"target_value"`
	Unit            string             `json:"unit"`
	Points          int                `json:"points"`
	Difficulty      int                `json:"difficulty"`
	Period          string             `json:"period"`
	IsActive        *bool              `json:"is_active"`
	TrackingMapping db.TrackingMapping `json:"tracking_mapping"`
	// LegacyFilter 兼容历史目录里的 SQL 片段写法，会被转换为结构化条件
	LegacyFilter string `json:"legacy_filter"`
}

func (p missionDefinitionPayload) toInput() (service.MissionInput, error) {
	mapping := p.TrackingMapping
	if strings.TrimSpace(p.LegacyFilter) != "" {
		clauses, err := service.ParseLegacyFilter(p.LegacyFilter)
		if err != nil {
			return service.MissionInput{}, fmt.Errorf("%w: legacy_filter: %w", service.ErrInvalidMissionDefinition, err)
		}
		mapping.Filters = append(mapping.Filters, clauses...)
	}

	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}

	return service.MissionInput{
		Code:            p.Code,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		SubCategory:     p.SubCategory,
		TargetValue:     p.TargetValue,
		Unit:            p.Unit,
		Points:          p.Points,
		Difficulty:      p.Difficulty,
		Period:          p.Period,
		IsActive:        active,
		TrackingMapping: mapping,
	}, nil
}

// AdminListMissions 列出任务目录，可按类别与启用状态过滤
func (a *API) AdminListMissions(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active_only", "false"))
	missions, err := a.engine.Catalog.List(c.Request.Context(), service.CatalogFilter{
		Category:   strings.TrimSpace(c.Query("category")),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		a.handleServiceError(c, err, "获取任务目录失败")
		return
	}

	items := make([]gin.H, 0, len(missions))
	for _, mission := range missions {
		items = append(items, a.serializeDefinition(mission))
	}
	c.JSON(http.StatusOK, gin.H{"missions": items, "total": len(items)})
}

// AdminGetMission 获取单个任务定义
func (a *API) AdminGetMission(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_id", "无效的任务ID")
		return
	}

	mission, err := a.engine.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		a.handleServiceError(c, err, "获取任务定义失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": a.serializeDefinition(*mission)})
}

// AdminCreateMission 新建任务定义
func (a *API) AdminCreateMission(c *gin.Context) {
	var payload missionDefinitionPayload
	if !bindJSON(c, &payload, "请填写完整的任务定义") {
		return
	}
	input, err := payload.toInput()
	if err != nil {
		a.handleServiceError(c, err, "任务定义不合法")
		return
	}

	mission, err := a.engine.Catalog.Create(c.Request.Context(), input)
	if err != nil {
		a.handleServiceError(c, err, "创建任务定义失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mission": a.serializeDefinition(*mission)})
}

// AdminUpdateMission 整体更新任务定义，已分配的用户任务在下次重算时使用新定义
func (a *API) AdminUpdateMission(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_id", "无效的任务ID")
		return
	}

	var payload missionDefinitionPayload
	if !bindJSON(c, &payload, "请填写完整的任务定义") {
		return
	}
	input, err := payload.toInput()
	if err != nil {
		a.handleServiceError(c, err, "任务定义不合法")
		return
	}

	mission, err := a.engine.Catalog.Update(c.Request.Context(), id, input)
	if err != nil {
		a.handleServiceError(c, err, "更新任务定义失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": a.serializeDefinition(*mission)})
}

// AdminActivateMission 启用任务定义
func (a *API) AdminActivateMission(c *gin.Context) {
	a.setMissionActive(c, true)
}

// AdminDeactivateMission 停用任务定义，已分配的用户任务不受影响
func (a *API) AdminDeactivateMission(c *gin.Context) {
	a.setMissionActive(c, false)
}

func (a *API) setMissionActive(c *gin.Context, active bool) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_id", "无效的任务ID")
		return
	}

	mission, err := a.engine.Catalog.SetActive(c.Request.Context(), id, active)
	if err != nil {
		a.handleServiceError(c, err, "更新任务状态失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission": a.serializeDefinition(*mission)})
}
