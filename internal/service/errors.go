package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration 表示任务的追踪映射不合法或引用了未知数据源
	ErrConfiguration = errors.New("mission configuration error")
	// ErrTransientStore 表示数据库暂时不可用或查询超时，可重试
	ErrTransientStore = errors.New("transient store error")
	// ErrConcurrencyConflict 表示乐观并发校验失败，需重新读取后重算
	ErrConcurrencyConflict = errors.New("user mission was modified concurrently")

	// ErrMissionNotFound 在任务定义不存在时返回
	ErrMissionNotFound = errors.New("mission not found")
	// ErrMissionInactive 在任务定义已停用时返回
	ErrMissionInactive = errors.New("mission is not active in catalog")
	// ErrUserMissionNotFound 在用户任务不存在时返回
	ErrUserMissionNotFound = errors.New("user mission not found")
	// ErrMissionAlreadyActive 重复领取进行中的任务
	ErrMissionAlreadyActive = errors.New("mission already active")
	// ErrMissionAlreadyCompleted 对已完成任务执行领取/取消
	ErrMissionAlreadyCompleted = errors.New("mission already completed")
	// ErrMissionNotActive 任务已过期或已取消
	ErrMissionNotActive = errors.New("mission is no longer active")

	// ErrInvalidTrackingEvent 追踪记录字段不合法
	ErrInvalidTrackingEvent = errors.New("invalid tracking event")
	// ErrInvalidMissionDefinition 任务定义字段不合法
	ErrInvalidMissionDefinition = errors.New("invalid mission definition")
	// ErrInvalidPreference 偏好设置不合法
	ErrInvalidPreference = errors.New("invalid mission preference")
	// ErrUnknownCategory 未登记的追踪类别
	ErrUnknownCategory = errors.New("unknown tracking category")
	// ErrInvalidTimezone 无法识别的 IANA 时区
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrInvalidDate 日期格式应为 YYYY-MM-DD
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidStatsPeriod 统计区间只支持 day/week/month/all
	ErrInvalidStatsPeriod = errors.New("invalid stats period")
)

// ConfigurationError 记录出错的任务 ID 与原因，errors.Is(err, ErrConfiguration) 成立。
type ConfigurationError struct {
	MissionID uint
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.MissionID == 0 {
		return fmt.Sprintf("invalid tracking mapping: %s", e.Reason)
	}
	return fmt.Sprintf("mission %d: invalid tracking mapping: %s", e.MissionID, e.Reason)
}

// Is 让 ConfigurationError 匹配 ErrConfiguration。
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// classifyStoreError 把超时与 sqlite 忙错误标记为可重试。
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientStore) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "interrupted") {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
	return err
}

// failureKind 把错误归类，用于批处理报告与指标。
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTransientStore):
		return "transient"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "other"
	}
}
