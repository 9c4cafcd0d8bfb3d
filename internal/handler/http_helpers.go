package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondErrorCode 在错误信息之外附带稳定的机器可读 code
func respondErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondErrorCode(c, http.StatusBadRequest, "invalid_request", message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// requireUserID 读取 user_id 查询参数，缺失时直接写入 400
func requireUserID(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		respondErrorCode(c, http.StatusBadRequest, "user_id_required", "缺少 user_id 参数")
		return "", false
	}
	return userID, true
}

// parseOptionalBool 解析可选布尔查询参数，空值返回 nil
func parseOptionalBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	return &parsed, nil
}

func optionalString(c *gin.Context, key string) *string {
	raw, ok := c.GetQuery(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	return &raw
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// 顺序有意义：任务定义校验错误可能包裹 ErrUnknownCategory
var serviceErrorMappings = []errorMapping{
	{service.ErrMissionAlreadyCompleted, http.StatusConflict, "mission_already_completed", "任务已完成"},
	{service.ErrMissionAlreadyActive, http.StatusConflict, "mission_already_active", "任务已在进行中"},
	{service.ErrMissionNotActive, http.StatusConflict, "mission_not_active", "任务已过期或已取消"},
	{service.ErrMissionInactive, http.StatusConflict, "mission_inactive", "任务已下线"},
	{service.ErrMissionNotFound, http.StatusNotFound, "mission_not_found", "任务不存在"},
	{service.ErrUserMissionNotFound, http.StatusNotFound, "user_mission_not_found", "用户任务不存在"},
	{service.ErrInvalidMissionDefinition, http.StatusBadRequest, "invalid_mission_definition", "任务定义不合法"},
	{service.ErrInvalidTrackingEvent, http.StatusBadRequest, "invalid_tracking_event", "追踪记录不合法"},
	{service.ErrUnknownCategory, http.StatusNotFound, "unknown_category", "未知的追踪类别"},
	{service.ErrInvalidPreference, http.StatusBadRequest, "invalid_preference", "偏好设置不合法"},
	{service.ErrInvalidTimezone, http.StatusBadRequest, "invalid_timezone", "无法识别的时区"},
	{service.ErrInvalidDate, http.StatusBadRequest, "invalid_date", "日期格式应为 YYYY-MM-DD"},
	{service.ErrInvalidStatsPeriod, http.StatusBadRequest, "invalid_period", "统计区间只支持 day/week/month/all"},
	{service.ErrConcurrencyConflict, http.StatusConflict, "concurrent_update", "任务正在被更新，请重试"},
	{service.ErrTransientStore, http.StatusServiceUnavailable, "store_unavailable", "存储暂时不可用，请稍后重试"},
}

// handleServiceError 把服务层错误映射为 HTTP 状态码与 code
func (a *API) handleServiceError(c *gin.Context, err error, fallback string) {
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.target) {
			message := m.message
			if m.status == http.StatusBadRequest {
				message = err.Error()
			}
			respondErrorCode(c, m.status, m.code, message)
			return
		}
	}

	a.logger.WithError(err).WithField("request_path", c.FullPath()).Error(fallback)
	c.Error(err)
	respondErrorCode(c, http.StatusInternalServerError, "internal_error", fallback)
}
