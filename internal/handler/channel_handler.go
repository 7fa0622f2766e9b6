package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notehub/internal/middleware"
	"github.com/hitoshi/notehub/internal/model"
)

// ChannelServiceInterface はチャンネルハンドラーが必要とするサービスインターフェース。
type ChannelServiceInterface interface {
	// Create は新規チャンネルを作成する。
	Create(ctx context.Context, id, name string, joinRule model.JoinRule, owner *model.User) (*model.Channel, error)
	// Join はユーザーをチャンネルに参加させる。
	Join(ctx context.Context, channelID string, user *model.User) error
	// Invite はオーナーが指定ハンドルをチャンネルに追加する。
	Invite(ctx context.Context, channelID string, inviter *model.User, handle string) error
	// Leave はユーザーをチャンネルから脱退させる。
	Leave(ctx context.Context, channelID string, user *model.User) error
	// Get は指定IDのチャンネルを購読者リスト付きで返す。
	Get(ctx context.Context, channelID string) (*model.Channel, error)
	// List は全チャンネルを返す。
	List(ctx context.Context) ([]*model.Channel, error)
	// ListMine はユーザーが購読中のチャンネルを返す。
	ListMine(ctx context.Context, user *model.User) ([]*model.Channel, error)
}

// ChannelHandler はチャンネル操作のHTTPハンドラー。
type ChannelHandler struct {
	service ChannelServiceInterface
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(service ChannelServiceInterface) *ChannelHandler {
	return &ChannelHandler{service: service}
}

// createChannelRequest はチャンネル作成リクエストのボディ。
type createChannelRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinRule string `json:"join_rule"`
}

// inviteRequest は招待リクエストのボディ。
type inviteRequest struct {
	Handle string `json:"handle"`
}

// subscriberResponse は購読者のAPIレスポンス。
type subscriberResponse struct {
	Handle   string    `json:"handle"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// channelResponse はチャンネルのAPIレスポンス。
type channelResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	JoinRule    string               `json:"join_rule"`
	OwnerHandle string               `json:"owner_handle"`
	Subscribers []subscriberResponse `json:"subscribers,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// CreateChannel はチャンネル作成を処理する。
// POST /api/channels
func (h *ChannelHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	ch, err := h.service.Create(r.Context(), req.ID, req.Name, model.JoinRule(req.JoinRule), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toChannelResponse(ch))
}

// GetChannel はチャンネル詳細を購読者リスト付きで取得する。
// GET /api/channels/:id
func (h *ChannelHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toChannelResponse(ch))
}

// ListChannels は全チャンネル一覧を返す。
// GET /api/channels
func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, toChannelResponse(ch))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]channelResponse{"channels": resp})
}

// ListMyChannels は認証済みユーザーが購読中のチャンネル一覧を返す。
// GET /api/channels/mine
func (h *ChannelHandler) ListMyChannels(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	channels, err := h.service.ListMine(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, toChannelResponse(ch))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]channelResponse{"channels": resp})
}

// JoinChannel はチャンネルへの自己参加を処理する。
// POST /api/channels/:id/join
func (h *ChannelHandler) JoinChannel(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Join(r.Context(), chi.URLParam(r, "id"), user); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InviteToChannel はオーナーによる招待を処理する。
// POST /api/channels/:id/invite
func (h *ChannelHandler) InviteToChannel(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req inviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Handle == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "招待するハンドルが空です。",
			Category: "validation",
			Action:   "handleを指定してください。",
		})
		return
	}

	if err := h.service.Invite(r.Context(), chi.URLParam(r, "id"), user, req.Handle); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LeaveChannel はチャンネルからの脱退を処理する。
// POST /api/channels/:id/leave
func (h *ChannelHandler) LeaveChannel(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Leave(r.Context(), chi.URLParam(r, "id"), user); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toChannelResponse はmodel.ChannelからAPIレスポンスに変換する。
func toChannelResponse(ch *model.Channel) channelResponse {
	resp := channelResponse{
		ID:          ch.ID,
		Name:        ch.Name,
		JoinRule:    string(ch.JoinRule),
		OwnerHandle: ch.OwnerHandle,
		CreatedAt:   ch.CreatedAt,
	}
	for _, s := range ch.Subscribers {
		resp.Subscribers = append(resp.Subscribers, subscriberResponse{
			Handle:   s.Handle,
			Role:     string(s.Role),
			JoinedAt: s.JoinedAt,
		})
	}
	return resp
}
