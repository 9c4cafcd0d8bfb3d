package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/service"
)

type preferencePayload struct {
	ShowCompletedMissions *bool   `json:"show_completed_missions"`
	SortBy                *string `json:"sort_by"`
	SortOrder             *string `json:"sort_order"`
}

// GetPreferences 返回用户任务列表偏好，首次访问时创建默认值
func (a *API) GetPreferences(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	pref, err := a.engine.Preferences.Get(c.Request.Context(), userID)
	if err != nil {
		a.handleServiceError(c, err, "获取任务偏好失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"preference": serializePreference(*pref)})
}

// UpdatePreferences 修改用户任务列表偏好，未提供的字段保持不变
func (a *API) UpdatePreferences(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var payload preferencePayload
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	pref, err := a.engine.Preferences.Update(c.Request.Context(), userID, service.PreferenceInput{
		ShowCompletedMissions: payload.ShowCompletedMissions,
		SortBy:                payload.SortBy,
		SortOrder:             payload.SortOrder,
	})
	if err != nil {
		a.handleServiceError(c, err, "保存任务偏好失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"preference": serializePreference(*pref)})
}

func serializePreference(pref db.UserMissionPreference) gin.H {
	payload := gin.H{
		"user_id":                 pref.UserID,
		"show_completed_missions": pref.ShowCompletedMissions,
		"sort_by":                 pref.SortBy,
		"sort_order":              pref.SortOrder,
	}
	if !pref.UpdatedAt.IsZero() {
		payload["updated_at"] = pref.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
