package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/notehub/internal/model"
)

// mockUserFinder はUserFinderのモック実装。
type mockUserFinder struct {
	findByAPITokenFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockUserFinder) FindByAPIToken(ctx context.Context, token string) (*model.User, error) {
	if m.findByAPITokenFn != nil {
		return m.findByAPITokenFn(ctx, token)
	}
	return nil, nil
}

// TestAuthMiddleware_ValidToken は有効なBearerトークンで認証済みユーザーが
// コンテキストに注入されることを検証する。
func TestAuthMiddleware_ValidToken(t *testing.T) {
	users := &mockUserFinder{
		findByAPITokenFn: func(ctx context.Context, token string) (*model.User, error) {
			if token != "secret-token" {
				return nil, nil
			}
			return &model.User{Handle: "alice", Pseudonym: "bright-fox"}, nil
		},
	}

	authMW := NewAuthMiddleware(users)

	var capturedHandle string
	handler := authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		capturedHandle = user.Handle
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedHandle != "alice" {
		t.Errorf("handle = %q, want %q", capturedHandle, "alice")
	}
}

// TestAuthMiddleware_MissingToken はトークンなしのリクエストが401になることを検証する。
func TestAuthMiddleware_MissingToken(t *testing.T) {
	authMW := NewAuthMiddleware(&mockUserFinder{})

	handler := authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestAuthMiddleware_UnknownToken は不明なトークンが401になることを検証する。
func TestAuthMiddleware_UnknownToken(t *testing.T) {
	users := &mockUserFinder{
		findByAPITokenFn: func(ctx context.Context, token string) (*model.User, error) {
			return nil, nil
		},
	}
	authMW := NewAuthMiddleware(users)

	handler := authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer unknown")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestAuthMiddleware_LookupError は検索エラーが500になることを検証する。
func TestAuthMiddleware_LookupError(t *testing.T) {
	users := &mockUserFinder{
		findByAPITokenFn: func(ctx context.Context, token string) (*model.User, error) {
			return nil, fmt.Errorf("db down")
		},
	}
	authMW := NewAuthMiddleware(users)

	handler := authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

// TestOptionalAuthMiddleware_NoToken はトークンなしでも匿名として通ることを検証する。
func TestOptionalAuthMiddleware_NoToken(t *testing.T) {
	authMW := NewOptionalAuthMiddleware(&mockUserFinder{})

	handlerCalled := false
	handler := authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if _, err := UserFromContext(r.Context()); err == nil {
			t.Error("匿名リクエストのコンテキストにユーザーがいてはならない")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !handlerCalled {
		t.Error("handler should have been called")
	}
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestOptionalAuthMiddleware_InvalidToken は不正なトークンが匿名扱いではなく
// 401で拒否されることを検証する。
func TestOptionalAuthMiddleware_InvalidToken(t *testing.T) {
	users := &mockUserFinder{
		findByAPITokenFn: func(ctx context.Context, token string) (*model.User, error) {
			return nil, nil
		},
	}
	authMW := NewOptionalAuthMiddleware(users)

	handler := authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestUserFromContext_NotSet は未注入コンテキストでのエラーを検証する。
func TestUserFromContext_NotSet(t *testing.T) {
	if _, err := UserFromContext(context.Background()); err == nil {
		t.Error("未注入コンテキストはエラーを返すべき")
	}
}

// TestContextWithUser はコンテキストへの注入と取得の往復を検証する。
func TestContextWithUser(t *testing.T) {
	ctx := ContextWithUser(context.Background(), &model.User{Handle: "bob"})

	user, err := UserFromContext(ctx)
	if err != nil {
		t.Fatalf("UserFromContext failed: %v", err)
	}
	if user.Handle != "bob" {
		t.Errorf("handle = %q, want %q", user.Handle, "bob")
	}
}
