package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wellnesslog/internal/db"
	"github.com/wellnesslog/internal/handler"
	"github.com/wellnesslog/internal/logging"
	"github.com/wellnesslog/internal/service"
	"gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		Retry:               service.RetryPolicy{Attempts: 1},
		BatchConcurrency:    1,
	}, logging.Discard())
	api := handler.NewAPI(gdb, engine, handler.NewRateLimiter(100, 100, logging.Discard()), logging.Discard())
	return SetupRouter(api, "test-secret", logging.Discard())
}

func TestSetupRouterServesOperationalEndpoints(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{path: "/ping", status: http.StatusOK, contains: "pong"},
		{path: "/healthz", status: http.StatusOK, contains: `"status":"ok"`},
		{path: "/metrics", status: http.StatusOK, contains: "wellnesslog_http_requests_total"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.contains) {
				t.Fatalf("expected body to contain %q, got %q", tt.contains, rr.Body.String())
			}
		})
	}
}

func TestSetupRouterStampsRequestID(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(logging.RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := rr.Header().Get(logging.RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rr.Header().Get(logging.RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestSetupRouterProtectsAdminAPI(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/missions", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestSetupRouterWiresTrackingAndMissionRoutes(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tracking/water?user_id=u1", strings.NewReader(`{"amount_ml": 250}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	for _, path := range []string{"/api/missions?user_id=u1", "/api/mission-stats?user_id=u1", "/api/preferences?user_id=u1", "/api/catalog"} {
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d: %s", path, http.StatusOK, rr.Code, rr.Body.String())
		}
	}
}
