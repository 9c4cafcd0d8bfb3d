package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/wellnesslog/internal/logging"
)

func TestRecordTrackingAssignsAndUpdatesMissions(t *testing.T) {
	s := newTestServer(t, nil)
	s.createWaterMission(t, "water-2l", 2000, 10)

	w := s.do(t, http.MethodPost, "/api/tracking/water?user_id=u1", map[string]any{
		"amount_ml":   500,
		"beverage":    "<b>tea</b>",
		"recorded_at": "2025-03-12T09:00:00Z",
	})
	payload := expectStatus(t, w, http.StatusCreated)

	event := payload["event"].(map[string]any)
	if event["amount_ml"] != float64(500) {
		t.Fatalf("unexpected amount: %v", event["amount_ml"])
	}
	if event["occurred_on"] != "2025-03-12" {
		t.Fatalf("unexpected occurred_on: %v", event["occurred_on"])
	}
	if event["beverage"] != "tea" {
		t.Fatalf("expected sanitized beverage, got %v", event["beverage"])
	}

	w = s.do(t, http.MethodGet, "/api/missions?user_id=u1", nil)
	payload = expectStatus(t, w, http.StatusOK)
	missions := payload["missions"].([]any)
	if len(missions) != 1 {
		t.Fatalf("expected one auto-assigned mission, got %d", len(missions))
	}
	mission := missions[0].(map[string]any)
	if mission["progress"] != float64(25) || mission["current_value"] != float64(500) {
		t.Fatalf("unexpected progress: %v", mission)
	}
	if mission["status"] != "active" || mission["source"] != "auto" {
		t.Fatalf("unexpected mission state: %v", mission)
	}
	if !strings.Contains(mission["description_html"].(string), "<strong>water</strong>") {
		t.Fatalf("expected rendered description, got %v", mission["description_html"])
	}
}

func TestRecordTrackingUnratedScoresAreNull(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/tracking/sleep?user_id=u1", map[string]any{
		"duration_minutes": 30,
		"recorded_at":      "2025-03-12T13:00:00Z",
	})
	event := expectStatus(t, w, http.StatusCreated)["event"].(map[string]any)
	if value, ok := event["quality"]; !ok || value != nil {
		t.Fatalf("expected null quality, got %v", value)
	}

	w = s.do(t, http.MethodPost, "/api/tracking/sleep?user_id=u1", map[string]any{
		"duration_minutes": 480,
		"quality":          5,
		"recorded_at":      "2025-03-12T07:00:00Z",
	})
	event = expectStatus(t, w, http.StatusCreated)["event"].(map[string]any)
	if event["quality"] != float64(5) {
		t.Fatalf("expected quality 5, got %v", event["quality"])
	}

	w = s.do(t, http.MethodPost, "/api/tracking/mood?user_id=u1", map[string]any{
		"mood_score":  7,
		"recorded_at": "2025-03-12T09:00:00Z",
	})
	event = expectStatus(t, w, http.StatusCreated)["event"].(map[string]any)
	if value, ok := event["stress_score"]; !ok || value != nil {
		t.Fatalf("expected null stress_score, got %v", value)
	}
}

func TestRecordTrackingErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "missing user", path: "/api/tracking/water", body: map[string]any{"amount_ml": 100}, status: http.StatusBadRequest, code: "user_id_required"},
		{name: "negative amount", path: "/api/tracking/water?user_id=u1", body: map[string]any{"amount_ml": -1}, status: http.StatusBadRequest, code: "invalid_tracking_event"},
		{name: "mood out of range", path: "/api/tracking/mood?user_id=u1", body: map[string]any{"mood_score": 11}, status: http.StatusBadRequest, code: "invalid_tracking_event"},
		{name: "unknown category", path: "/api/tracking/steps?user_id=u1", body: map[string]any{"steps": 100}, status: http.StatusNotFound, code: "unknown_category"},
		{name: "bad json", path: "/api/tracking/water?user_id=u1", body: "not-an-object", status: http.StatusBadRequest, code: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.body)
			expectErrorCode(t, w, tt.status, tt.code)
		})
	}
}

func TestListTrackingDefaultsToUserToday(t *testing.T) {
	s := newTestServer(t, nil)

	for _, body := range []map[string]any{
		{"meal_type": "lunch", "calories": 600, "recorded_at": "2025-03-12T12:00:00Z"},
		{"meal_type": "breakfast", "calories": 300, "recorded_at": "2025-03-12T07:00:00Z"},
		{"meal_type": "dinner", "calories": 700, "recorded_at": "2025-03-11T19:00:00Z"},
	} {
		w := s.do(t, http.MethodPost, "/api/tracking/meal?user_id=u1", body)
		expectStatus(t, w, http.StatusCreated)
	}

	w := s.do(t, http.MethodGet, "/api/tracking/meal?user_id=u1", nil)
	payload := expectStatus(t, w, http.StatusOK)
	if payload["date"] != "2025-03-12" {
		t.Fatalf("unexpected date: %v", payload["date"])
	}
	events := payload["events"].([]any)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].(map[string]any)["meal_type"] != "breakfast" {
		t.Fatalf("expected events ordered by recorded_at, got %v", events)
	}

	w = s.do(t, http.MethodGet, "/api/tracking/meal?user_id=u1&date=2025-03-11", nil)
	payload = expectStatus(t, w, http.StatusOK)
	if len(payload["events"].([]any)) != 1 {
		t.Fatalf("expected 1 event on 2025-03-11, got %v", payload["events"])
	}

	w = s.do(t, http.MethodGet, "/api/tracking/meal?user_id=u1&date=03/11/2025", nil)
	expectErrorCode(t, w, http.StatusBadRequest, "invalid_date")
}

func TestRecordTrackingRateLimitedPerUser(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1, logging.Discard())
	s := newTestServer(t, limiter)

	body := map[string]any{"amount_ml": 200}
	expectStatus(t, s.do(t, http.MethodPost, "/api/tracking/water?user_id=u1", body), http.StatusCreated)
	expectErrorCode(t, s.do(t, http.MethodPost, "/api/tracking/water?user_id=u1", body), http.StatusTooManyRequests, "rate_limited")

	// 其他用户不受影响
	expectStatus(t, s.do(t, http.MethodPost, "/api/tracking/water?user_id=u2", body), http.StatusCreated)
}
