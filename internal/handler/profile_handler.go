package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type timezoneRequest struct {
	Timezone string `json:"timezone"`
}

// GetTimezone 返回用户生效的时区与当地今天
func (a *API) GetTimezone(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	loc, err := a.engine.Profiles.Location(ctx, userID)
	if err != nil {
		a.handleServiceError(c, err, "获取用户时区失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"timezone": loc.String(),
		"today":    a.engine.Now().In(loc).Format("2006-01-02"),
	})
}

// SetTimezone 设置用户时区，之后写入的记录与分配的任务都按新时区划分日期
func (a *API) SetTimezone(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	var payload timezoneRequest
	if !bindJSON(c, &payload, "请提供时区") {
		return
	}

	profile, err := a.engine.Profiles.SetTimezone(c.Request.Context(), userID, payload.Timezone)
	if err != nil {
		a.handleServiceError(c, err, "保存用户时区失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  profile.UserID,
		"timezone": profile.Timezone,
	})
}
