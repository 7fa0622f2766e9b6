package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notehub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// エントリ
	EntryService EntryServiceInterface

	// チャンネル
	ChannelService ChannelServiceInterface

	// 通知
	NotificationLister NotificationListerInterface

	// ヘルスチェック
	HealthCheck http.HandlerFunc
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Auth → RateLimit(General)
//
// 閲覧系ルート（フィード・エントリ詳細・チャンネル一覧）は匿名アクセスを許す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	entryHandler := NewEntryHandler(deps.EntryService)
	channelHandler := NewChannelHandler(deps.ChannelService)
	notificationHandler := NewNotificationHandler(deps.NotificationLister)

	// ヘルスチェック（認証・レート制限の外）
	if deps.HealthCheck != nil {
		r.Get("/healthz", deps.HealthCheck)
	}

	// --- 匿名アクセスを許す閲覧系ルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.UserFinder))

		r.Get("/api/feed", entryHandler.Feed)
		r.Get("/api/entries/{id}", entryHandler.GetEntry)
		r.Get("/api/entries/{id}/replies", entryHandler.ListReplies)
		r.Get("/api/channels", channelHandler.ListChannels)
		r.Get("/api/channels/{id}", channelHandler.GetChannel)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// エントリ管理
		r.Route("/api/entries", func(r chi.Router) {
			// POST /api/entries - エントリ投稿（投稿専用レート制限を追加）
			r.With(deps.RateLimiter.PostMiddleware()).Post("/", entryHandler.CreateEntry)

			r.Get("/pending", entryHandler.ListPending)
			r.Get("/mine", entryHandler.ListMine)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", entryHandler.DeleteEntry)
				r.Post("/publish", entryHandler.PublishEntry)
			})
		})

		// チャンネル管理
		r.Route("/api/channels", func(r chi.Router) {
			r.Post("/", channelHandler.CreateChannel)
			r.Get("/mine", channelHandler.ListMyChannels)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/join", channelHandler.JoinChannel)
				r.Post("/invite", channelHandler.InviteToChannel)
				r.Post("/leave", channelHandler.LeaveChannel)
			})
		})

		// 通知
		r.Get("/api/notifications", notificationHandler.ListNotifications)
	})

	return r
}
