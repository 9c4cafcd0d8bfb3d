package router

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wellnesslog/internal/handler"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/metrics"
)

const sessionName = "wellnesslog_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(logger))
	r.Use(metrics.Middleware())

	// 配置会话中间件
	secret := strings.TrimSpace(sessionSecret)
	if secret == "" {
		secret = "wellnesslog-dev-secret"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: 7 * 24 * 3600})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/healthz", api.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	public := r.Group("/api")
	{
		tracking := public.Group("/tracking")
		tracking.GET("/:category", api.ListTracking)
		tracking.POST("/:category", api.TrackingRateLimit(), api.RecordTracking)

		public.GET("/catalog", api.ListCatalog)
		public.GET("/missions", api.ListMissions)
		public.POST("/missions/:id/accept", api.AcceptMission)
		public.GET("/mission-stats", api.GetMissionStats)

		public.GET("/user-missions/:id", api.GetUserMission)
		public.POST("/user-missions/:id/cancel", api.CancelMission)

		public.GET("/preferences", api.GetPreferences)
		public.PUT("/preferences", api.UpdatePreferences)

		public.GET("/users/:id/timezone", api.GetTimezone)
		public.PUT("/users/:id/timezone", api.SetTimezone)
	}

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		// 需要认证的后台路由
		auth := admin.Group("/api")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/me", api.CurrentAdmin)

			auth.GET("/missions", api.AdminListMissions)
			auth.GET("/missions/:id", api.AdminGetMission)
			auth.POST("/missions", api.AdminCreateMission)
			auth.PUT("/missions/:id", api.AdminUpdateMission)
			auth.POST("/missions/:id/activate", api.AdminActivateMission)
			auth.POST("/missions/:id/deactivate", api.AdminDeactivateMission)

			auth.POST("/reconcile", api.RunReconcile)
		}
	}

	return r
}
