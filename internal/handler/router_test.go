package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/notehub/internal/entry"
	"github.com/hitoshi/notehub/internal/middleware"
	"github.com/hitoshi/notehub/internal/model"
)

type mockUserFinder struct {
	users map[string]*model.User
}

func (m *mockUserFinder) FindByAPIToken(ctx context.Context, token string) (*model.User, error) {
	return m.users[token], nil
}

type mockNotificationLister struct {
	listFn func(ctx context.Context, handle string, limit int) ([]*model.Notification, error)
}

func (m *mockNotificationLister) ListByRecipient(ctx context.Context, handle string, limit int) ([]*model.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, handle, limit)
	}
	return nil, nil
}

func newTestRouter() http.Handler {
	entrySvc := &mockEntryService{
		createFn: func(ctx context.Context, author *model.User, input entry.CreateInput) (*model.Entry, error) {
			return &model.Entry{ID: "entry-1", AuthorPseudonym: author.Pseudonym, Content: input.Content, CreatedAt: time.Now()}, nil
		},
		feedFn: func(ctx context.Context, viewer *model.User, aiView bool, cursor time.Time, limit int) ([]*model.Entry, error) {
			return []*model.Entry{}, nil
		},
		getFn: func(ctx context.Context, id string, viewer *model.User, aiView bool) (*model.Entry, error) {
			return &model.Entry{ID: id, CreatedAt: time.Now()}, nil
		},
	}
	channelSvc := &mockChannelService{
		listFn: func(ctx context.Context) ([]*model.Channel, error) {
			return []*model.Channel{}, nil
		},
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	return NewRouter(&RouterDeps{
		UserFinder: &mockUserFinder{users: map[string]*model.User{
			"valid-token": {Handle: "carol", Pseudonym: "quiet-otter"},
		}},
		CORSAllowedOrigin:  "https://app.example.com",
		RateLimiter:        rl,
		EntryService:       entrySvc,
		ChannelService:     channelSvc,
		NotificationLister: &mockNotificationLister{},
		HealthCheck: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

// TestRouter_Healthz はヘルスチェックが認証なしで通ることを検証する。
func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_FeedAllowsAnonymous はフィードが匿名で閲覧できることを検証する。
func TestRouter_FeedAllowsAnonymous(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/feed", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_CreateEntryRequiresAuth は投稿が認証必須であることを検証する。
func TestRouter_CreateEntryRequiresAuth(t *testing.T) {
	router := newTestRouter()

	body, _ := json.Marshal(createEntryRequest{Content: "<p>hi</p>"})

	// トークンなしは401
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewReader(body)))
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}

	// 有効なトークンで201
	req := httptest.NewRequest(http.MethodPost, "/api/entries", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}
}

// TestRouter_SecurityHeaders は全レスポンスにセキュリティヘッダーが
// 付与されることを検証する。
func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// TestRouter_NotificationsRequireAuth は通知一覧が認証必須であることを検証する。
func TestRouter_NotificationsRequireAuth(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_MineRoutesRequireAuth は/mineルートが認証必須で、
// {id}ルートに吸われないことを検証する。
func TestRouter_MineRoutesRequireAuth(t *testing.T) {
	router := newTestRouter()

	for _, target := range []string{"/api/entries/mine", "/api/channels/mine"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s 匿名 status = %d, want %d", target, w.Result().StatusCode, http.StatusUnauthorized)
		}

		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("GET %s 認証済み status = %d, want %d", target, w.Result().StatusCode, http.StatusOK)
		}
	}
}

// TestRouter_RepliesAllowsAnonymous は返信一覧が匿名で閲覧できることを検証する。
func TestRouter_RepliesAllowsAnonymous(t *testing.T) {
	router := newTestRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/entries/entry-1/replies", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}
