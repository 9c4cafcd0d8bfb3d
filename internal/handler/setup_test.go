package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 2025-03-12 15:00 UTC，东京已是 3 月 13 日
var handlerTestNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

type testServer struct {
	api    *API
	db     *gorm.DB
	engine *service.MissionEngine
	router *gin.Engine
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handler-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(dsn, logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	engine := service.NewMissionEngine(gdb, service.EngineOptions{
		DefaultLocation:     time.UTC,
		StarterMissionLimit: 3,
		ResolverTimeout:     time.Second,
		Retry:               service.RetryPolicy{Attempts: 2, Backoff: time.Millisecond},
		BatchConcurrency:    2,
	}, logging.Discard())
	engine.WithClock(func() time.Time { return handlerTestNow })

	api := NewAPI(gdb, engine, limiter, logging.Discard())

	r := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	r.Use(sessions.Sessions("test_session", store))

	r.GET("/healthz", api.HealthCheck)
	r.GET("/api/tracking/:category", api.ListTracking)
	r.POST("/api/tracking/:category", api.TrackingRateLimit(), api.RecordTracking)
	r.GET("/api/catalog", api.ListCatalog)
	r.GET("/api/missions", api.ListMissions)
	r.POST("/api/missions/:id/accept", api.AcceptMission)
	r.GET("/api/mission-stats", api.GetMissionStats)
	r.GET("/api/user-missions/:id", api.GetUserMission)
	r.POST("/api/user-missions/:id/cancel", api.CancelMission)
	r.GET("/api/preferences", api.GetPreferences)
	r.PUT("/api/preferences", api.UpdatePreferences)
	r.GET("/api/users/:id/timezone", api.GetTimezone)
	r.PUT("/api/users/:id/timezone", api.SetTimezone)

	r.POST("/admin/login", api.Login)
	r.POST("/admin/logout", api.Logout)
	auth := r.Group("/admin/api")
	auth.Use(AuthRequired())
	auth.GET("/me", api.CurrentAdmin)
	auth.GET("/missions", api.AdminListMissions)
	auth.GET("/missions/:id", api.AdminGetMission)
	auth.POST("/missions", api.AdminCreateMission)
	auth.PUT("/missions/:id", api.AdminUpdateMission)
	auth.POST("/missions/:id/activate", api.AdminActivateMission)
	auth.POST("/missions/:id/deactivate", api.AdminDeactivateMission)
	auth.POST("/reconcile", api.RunReconcile)

	return &testServer{api: api, db: gdb, engine: engine, router: r}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return payload
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	return decodeJSON(t, w)
}

func expectErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	payload := expectStatus(t, w, status)
	if payload["code"] != code {
		t.Fatalf("expected code %q, got %v", code, payload["code"])
	}
}

func (s *testServer) createWaterMission(t *testing.T, code string, target float64, points int) db.MissionDefinition {
	t.Helper()
	def, err := s.engine.Catalog.Create(context.Background(), service.MissionInput{
		Code:        code,
		Title:       code,
		Description: "Drink **water**",
		Category:    db.CategoryWater,
		TargetValue: target,
		Unit:        "ml",
		Points:      points,
		Difficulty:  1,
		Period:      db.PeriodDaily,
		IsActive:    true,
		TrackingMapping: db.TrackingMapping{
			Table:       "water_tracking",
			Column:      "amount_ml",
			Aggregation: db.AggregationSum,
		},
	})
	if err != nil {
		t.Fatalf("create mission %s: %v", code, err)
	}
	return *def
}

func (s *testServer) insertUserMission(t *testing.T, um db.UserMission) db.UserMission {
	t.Helper()
	if um.Version == 0 {
		um.Version = 1
	}
	if um.Source == "" {
		um.Source = db.MissionSourceManual
	}
	if err := s.db.Create(&um).Error; err != nil {
		t.Fatalf("insert user mission: %v", err)
	}
	return um
}

func trackingInput(userID string, amount float64, at time.Time) service.TrackingEventInput {
	return service.TrackingEventInput{
		UserID:     userID,
		Category:   db.CategoryWater,
		AmountML:   amount,
		RecordedAt: at,
	}
}
