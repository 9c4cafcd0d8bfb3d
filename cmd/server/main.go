package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/config"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/handler"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/router"
	"github.com/wellnesslog/internal/scheduler"
	"github.com/wellnesslog/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}

	created, err := db.EnsureAdmin(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword)
	if err != nil {
		logger.WithError(err).Fatal("failed to ensure admin account")
	}
	if created {
		logger.WithField("username", cfg.SuperRootUserName).Info("admin account created")
	}

	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		logger.WithError(err).Warn("invalid DEFAULT_TIMEZONE, falling back to UTC")
	}
	engine := service.NewMissionEngine(db.DB, opts, logger)

	if cfg.CatalogFile != "" {
		result, err := engine.Catalog.LoadCatalogFile(context.Background(), cfg.CatalogFile)
		if err != nil {
			logger.WithError(err).WithField("file", cfg.CatalogFile).Fatal("failed to load mission catalog")
		}
		logger.WithFields(logrus.Fields{
			"file":    cfg.CatalogFile,
			"created": result.Created,
			"updated": result.Updated,
		}).Info("mission catalog loaded")
	}

	var nightly *scheduler.Scheduler
	if cfg.ReconcileEnabled {
		nightly = scheduler.New(engine, opts.DefaultLocation, cfg.ReconcileAt, logger)
		if err := nightly.Start(); err != nil {
			logger.WithError(err).Fatal("failed to start reconciliation scheduler")
		}
	}

	limiter := handler.NewRateLimiter(cfg.TrackingRateLimit, cfg.TrackingRateBurst, logger)
	api := handler.NewAPI(db.DB, engine, limiter, logger)

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, cfg.SessionSecret, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to run server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if nightly != nil {
		nightly.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}
