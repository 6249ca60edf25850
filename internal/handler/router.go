package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/auctiond/internal/middleware"
	"github.com/hitoshi/auctiond/internal/model"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェックとメトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface

	// オークション・入札
	AuctionService AuctionServiceInterface
	BidService     BidServiceInterface

	// 通知
	NotificationService NotificationServiceInterface

	// ライブチャンネル
	LiveHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → AuthMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）と公開読み取りルートはAuth以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効く共通ミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	auctionHandler := NewAuctionHandler(deps.AuctionService, deps.BidService)
	notifHandler := NewNotificationHandler(deps.NotificationService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				writeAPIErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
					Code:     "UNHEALTHY",
					Message:  "データベースに接続できません。",
					Category: "system",
					Action:   "しばらく待ってから再度お試しください。",
				})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusスクレイプ用エンドポイント
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// 公開読み取りルート
	r.Route("/auctions", func(r chi.Router) {
		r.Get("/", auctionHandler.ListAuctions)
		r.Get("/{id}", auctionHandler.GetAuction)
	})

	// ライブチャンネル（トークンなしはオブザーバーとして接続できる）
	if deps.LiveHandler != nil {
		r.Handle("/ws", deps.LiveHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", authHandler.Me)
		r.Get("/api/me/bids", auctionHandler.MyBids)

		// オークション管理
		r.Route("/api/auctions", func(r chi.Router) {
			r.Post("/", auctionHandler.CreateAuction)

			// POST /api/auctions/{id}/bids - 入札（入札専用レート制限を追加）
			r.With(deps.RateLimiter.BidMiddleware()).Post("/{id}/bids", auctionHandler.PlaceBid)
		})

		// 通知管理
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notifHandler.ListNotifications)
			r.Post("/read-all", notifHandler.MarkAllRead)
			r.Delete("/read", notifHandler.DeleteReadNotifications)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/read", notifHandler.MarkRead)
				r.Delete("/", notifHandler.DeleteNotification)
			})
		})
	})

	return r
}
