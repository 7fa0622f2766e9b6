package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/notehub/internal/model"
)

// TestListNotifications_ReturnsOwn は自分宛の通知一覧が返ることを検証する。
func TestListNotifications_ReturnsOwn(t *testing.T) {
	var gotHandle string
	lister := &mockNotificationLister{
		listFn: func(ctx context.Context, handle string, limit int) ([]*model.Notification, error) {
			gotHandle = handle
			return []*model.Notification{
				{ID: "n-1", EntryID: "entry-1", AuthorPseudonym: "quiet-otter", CreatedAt: time.Now()},
			}, nil
		},
	}
	h := NewNotificationHandler(lister)

	w := httptest.NewRecorder()
	h.ListNotifications(w, authedReq(http.MethodGet, "/api/notifications", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotHandle != "carol" {
		t.Errorf("handle = %q, want carol", gotHandle)
	}

	var resp map[string][]notificationResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp["notifications"]) != 1 || resp["notifications"][0].EntryID != "entry-1" {
		t.Errorf("notifications = %+v", resp["notifications"])
	}
}

// TestListNotifications_Unauthenticated は未認証リクエストが401になることを検証する。
func TestListNotifications_Unauthenticated(t *testing.T) {
	h := NewNotificationHandler(&mockNotificationLister{})

	w := httptest.NewRecorder()
	h.ListNotifications(w, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestListNotifications_LimitClamped はlimitパラメータの既定値と上限を検証する。
func TestListNotifications_LimitClamped(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"既定値", "", 50},
		{"指定値", "?limit=10", 10},
		{"上限超過は既定値", "?limit=500", 50},
		{"不正値は既定値", "?limit=abc", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			lister := &mockNotificationLister{
				listFn: func(ctx context.Context, handle string, limit int) ([]*model.Notification, error) {
					gotLimit = limit
					return nil, nil
				},
			}
			h := NewNotificationHandler(lister)

			w := httptest.NewRecorder()
			h.ListNotifications(w, authedReq(http.MethodGet, "/api/notifications"+tt.query, nil))

			if gotLimit != tt.want {
				t.Errorf("limit = %d, want %d", gotLimit, tt.want)
			}
		})
	}
}
