package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/notehub/internal/middleware"
	"github.com/hitoshi/notehub/internal/model"
)

// NotificationListerInterface は通知一覧の取得に必要なインターフェース。
// repository.NotificationRepositoryの部分集合として定義する。
type NotificationListerInterface interface {
	ListByRecipient(ctx context.Context, handle string, limit int) ([]*model.Notification, error)
}

// NotificationHandler はアプリ内通知のHTTPハンドラー。
type NotificationHandler struct {
	lister NotificationListerInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(lister NotificationListerInterface) *NotificationHandler {
	return &NotificationHandler{lister: lister}
}

// notificationResponse は通知のAPIレスポンス。
type notificationResponse struct {
	ID              string    `json:"id"`
	EntryID         string    `json:"entry_id"`
	AuthorPseudonym string    `json:"author_pseudonym"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListNotifications は認証済みユーザー宛の通知一覧を返す。
// GET /api/notifications?limit=<n>
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notifications, err := h.lister.ListByRecipient(r.Context(), user.Handle, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, notificationResponse{
			ID:              n.ID,
			EntryID:         n.EntryID,
			AuthorPseudonym: n.AuthorPseudonym,
			CreatedAt:       n.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]notificationResponse{"notifications": resp})
}
