package handler

import (
	"net/http"
	"testing"
)

func TestPreferencesEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	payload := expectStatus(t, s.do(t, http.MethodGet, "/api/preferences?user_id=u1", nil), http.StatusOK)
	pref := payload["preference"].(map[string]any)
	if pref["sort_by"] != "progress" || pref["sort_order"] != "desc" || pref["show_completed_missions"] != false {
		t.Fatalf("unexpected default preference: %v", pref)
	}

	payload = expectStatus(t, s.do(t, http.MethodPut, "/api/preferences?user_id=u1", map[string]any{
		"sort_by":                 "Difficulty",
		"show_completed_missions": true,
	}), http.StatusOK)
	pref = payload["preference"].(map[string]any)
	if pref["sort_by"] != "difficulty" || pref["sort_order"] != "desc" || pref["show_completed_missions"] != true {
		t.Fatalf("unexpected updated preference: %v", pref)
	}

	expectErrorCode(t, s.do(t, http.MethodPut, "/api/preferences?user_id=u1", map[string]any{"sort_order": "sideways"}), http.StatusBadRequest, "invalid_preference")

	payload = expectStatus(t, s.do(t, http.MethodGet, "/api/preferences?user_id=u1", nil), http.StatusOK)
	if payload["preference"].(map[string]any)["sort_by"] != "difficulty" {
		t.Fatalf("invalid update must not change stored preference: %v", payload["preference"])
	}

	expectErrorCode(t, s.do(t, http.MethodGet, "/api/preferences", nil), http.StatusBadRequest, "user_id_required")
}

func TestTimezoneEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	payload := expectStatus(t, s.do(t, http.MethodGet, "/api/users/u1/timezone", nil), http.StatusOK)
	if payload["timezone"] != "UTC" || payload["today"] != "2025-03-12" {
		t.Fatalf("unexpected default timezone: %v", payload)
	}

	expectErrorCode(t, s.do(t, http.MethodPut, "/api/users/u1/timezone", map[string]any{"timezone": "Mars/Olympus"}), http.StatusBadRequest, "invalid_timezone")

	payload = expectStatus(t, s.do(t, http.MethodPut, "/api/users/u1/timezone", map[string]any{"timezone": "Asia/Tokyo"}), http.StatusOK)
	if payload["timezone"] != "Asia/Tokyo" {
		t.Fatalf("unexpected timezone: %v", payload)
	}

	payload = expectStatus(t, s.do(t, http.MethodGet, "/api/users/u1/timezone", nil), http.StatusOK)
	if payload["today"] != "2025-03-13" {
		t.Fatalf("expected Tokyo day 2025-03-13, got %v", payload["today"])
	}

	// 记录的日期按东京时间划分
	payload = expectStatus(t, s.do(t, http.MethodPost, "/api/tracking/water?user_id=u1", map[string]any{"amount_ml": 300}), http.StatusCreated)
	if payload["event"].(map[string]any)["occurred_on"] != "2025-03-13" {
		t.Fatalf("expected occurred_on in user timezone, got %v", payload["event"])
	}
}
