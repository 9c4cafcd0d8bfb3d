package handler

import (
	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db      *gorm.DB
	engine  *service.MissionEngine
	limiter *RateLimiter
	logger  logrus.FieldLogger
}

// NewAPI constructs a handler set on top of the mission engine.
// limiter 为空时追踪写入不限流。
func NewAPI(gdb *gorm.DB, engine *service.MissionEngine, limiter *RateLimiter, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		db:      gdb,
		engine:  engine,
		limiter: limiter,
		logger:  logger,
	}
}

// DB exposes the underlying gorm instance for admin login.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Engine 返回任务引擎
func (a *API) Engine() *service.MissionEngine {
	return a.engine
}
