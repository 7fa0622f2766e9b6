// Package handler はREST APIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notehub/internal/delivery"
	"github.com/hitoshi/notehub/internal/entry"
	"github.com/hitoshi/notehub/internal/middleware"
	"github.com/hitoshi/notehub/internal/model"
)

// EntryServiceInterface はエントリハンドラーが必要とするサービスインターフェース。
type EntryServiceInterface interface {
	// Create は新規エントリをステージングする。
	Create(ctx context.Context, author *model.User, input entry.CreateInput) (*model.Entry, error)
	// Get は指定IDのエントリを閲覧者の権限で取得する。
	Get(ctx context.Context, id string, viewer *model.User, aiView bool) (*model.Entry, error)
	// Feed は閲覧者が見てよい公開済みエントリを返す。
	Feed(ctx context.Context, viewer *model.User, aiView bool, cursor time.Time, limit int) ([]*model.Entry, error)
	// Replies は指定エントリへの返信を閲覧者の権限で返す。
	Replies(ctx context.Context, parentID string, viewer *model.User, aiView bool, limit int) ([]*model.Entry, error)
	// Mine は投稿者本人の公開済みエントリを返す。
	Mine(ctx context.Context, viewer *model.User, limit int) ([]*model.Entry, error)
	// Pending は投稿者本人のステージング中エントリを返す。
	Pending(viewer *model.User) []*model.Entry
	// PublishNow はステージング中のエントリを即時公開し配信結果を返す。
	PublishNow(ctx context.Context, id string, viewer *model.User) (*model.Entry, []delivery.Result, error)
	// Delete はエントリを削除する。
	Delete(ctx context.Context, id string, viewer *model.User) error
}

// EntryHandler はエントリ操作のHTTPハンドラー。
type EntryHandler struct {
	service EntryServiceInterface
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(service EntryServiceInterface) *EntryHandler {
	return &EntryHandler{service: service}
}

// createEntryRequest はエントリ作成リクエストのボディ。
type createEntryRequest struct {
	Content   string   `json:"content"`
	To        []string `json:"to"`
	InReplyTo string   `json:"in_reply_to,omitempty"`
	AIOnly    bool     `json:"ai_only,omitempty"`
}

// entryResponse はエントリのAPIレスポンス。
// 投稿者はペンネームでのみ表示する。
type entryResponse struct {
	ID              string     `json:"id"`
	AuthorPseudonym string     `json:"author_pseudonym"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"created_at"`
	To              []string   `json:"to"`
	InReplyTo       string     `json:"in_reply_to,omitempty"`
	AIOnly          bool       `json:"ai_only,omitempty"`
	PublishAt       *time.Time `json:"publish_at,omitempty"`
}

// publishResponse は即時公開のAPIレスポンス。
type publishResponse struct {
	Entry   *entryResponse    `json:"entry"`
	Results []delivery.Result `json:"results"`
}

// feedResponse はフィードのAPIレスポンス。
type feedResponse struct {
	Entries    []entryResponse `json:"entries"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// CreateEntry はエントリ作成を処理する。
// POST /api/entries
func (h *EntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	e, err := h.service.Create(r.Context(), user, entry.CreateInput{
		Content:   req.Content,
		To:        req.To,
		InReplyTo: req.InReplyTo,
		AIOnly:    req.AIOnly,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEntryResponse(e))
}

// GetEntry はエントリ詳細を取得する。
// GET /api/entries/:id
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")
	viewer, _ := middleware.UserFromContext(r.Context())

	e, err := h.service.Get(r.Context(), entryID, viewer, isAIView(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEntryResponse(e))
}

// DeleteEntry はエントリを削除する。
// DELETE /api/entries/:id
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), user); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PublishEntry はステージング中のエントリを即時公開する。
// 公開済みまたは不存在のIDに対しては空の結果を返す（冪等）。
// POST /api/entries/:id/publish
func (h *EntryHandler) PublishEntry(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	e, results, err := h.service.PublishNow(r.Context(), chi.URLParam(r, "id"), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := publishResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []delivery.Result{}
	}
	if e != nil {
		er := toEntryResponse(e)
		resp.Entry = &er
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListPending は投稿者本人のステージング中エントリ一覧を返す。
// GET /api/entries/pending
func (h *EntryHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	pending := h.service.Pending(user)
	entries := make([]entryResponse, 0, len(pending))
	for _, e := range pending {
		entries = append(entries, toEntryResponse(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]entryResponse{"entries": entries})
}

// ListReplies は指定エントリへの返信一覧を返す。
// 親エントリが閲覧できない場合はエラーになる。
// GET /api/entries/:id/replies?limit=<n>
func (h *EntryHandler) ListReplies(w http.ResponseWriter, r *http.Request) {
	viewer, _ := middleware.UserFromContext(r.Context())

	replies, err := h.service.Replies(r.Context(), chi.URLParam(r, "id"), viewer, isAIView(r), queryLimit(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]entryResponse, 0, len(replies))
	for _, e := range replies {
		entries = append(entries, toEntryResponse(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]entryResponse{"entries": entries})
}

// ListMine は投稿者本人の公開済みエントリ一覧を返す。
// GET /api/entries/mine?limit=<n>
func (h *EntryHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	mine, err := h.service.Mine(r.Context(), user, queryLimit(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]entryResponse, 0, len(mine))
	for _, e := range mine {
		entries = append(entries, toEntryResponse(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]entryResponse{"entries": entries})
}

// Feed は閲覧者が見てよい公開済みエントリをカーソルページングで返す。
// GET /api/feed?cursor=<RFC3339>&limit=<n>
func (h *EntryHandler) Feed(w http.ResponseWriter, r *http.Request) {
	viewer, _ := middleware.UserFromContext(r.Context())

	var cursor time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "cursorの形式が不正です。",
				Category: "validation",
				Action:   "RFC3339形式のタイムスタンプを指定してください。",
			})
			return
		}
		cursor = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := h.service.Feed(r.Context(), viewer, isAIView(r), cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := feedResponse{Entries: make([]entryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(e))
	}
	if len(entries) > 0 {
		resp.NextCursor = entries[len(entries)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// isAIView はAI向け閲覧（本文スタブを解除する閲覧モード）かを判定する。
// 識別済みの呼び出し元に限る。匿名リクエストのview=aiは無視する。
func isAIView(r *http.Request) bool {
	if _, err := middleware.UserFromContext(r.Context()); err != nil {
		return false
	}
	return r.URL.Query().Get("view") == "ai"
}

// queryLimit はlimitクエリパラメータを解析する。未指定・不正値は0を返し、
// 既定値の適用はサービス層に委ねる。
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// --- ヘルパー関数 ---

// toEntryResponse はmodel.EntryからAPIレスポンスに変換する。
func toEntryResponse(e *model.Entry) entryResponse {
	to := e.To
	if to == nil {
		to = []string{}
	}
	return entryResponse{
		ID:              e.ID,
		AuthorPseudonym: e.AuthorPseudonym,
		Content:         e.Content,
		CreatedAt:       e.CreatedAt,
		To:              to,
		InReplyTo:       e.InReplyTo,
		AIOnly:          e.AIOnly,
		PublishAt:       e.PublishAt,
	}
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorized は401の統一レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "APIトークンを指定してください。",
	})
}

// writeInvalidRequestBody はボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
