package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/negocio/internal/auth"
	"github.com/hitoshi/negocio/internal/identity"
	"github.com/hitoshi/negocio/internal/metrics"
	"github.com/hitoshi/negocio/internal/middleware"
)

// Pinger はヘルスチェックでのDB疎通確認に必要なインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Tokens             *auth.TokenManager

	// サービス
	AuthService    AuthServiceInterface
	CompanyService CompanyServiceInterface

	// ローカルモードのみ非nil
	LocalIdentity *identity.LocalProvider

	// 観測
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
	DB        Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// 認証が必要なルートにはさらに Auth → RateLimit(General) が重なる。
// 登録・ログイン系の公開ルートにはIP単位のRateLimit(Register)を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.Collector)
	userHandler := NewUserHandler(deps.CompanyService, deps.Collector)
	refHandler := NewReferenceHandler(deps.CompanyService)

	// --- 運用エンドポイント ---
	r.Get("/health", newHealthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証不要のルート ---
	r.Route("/api", func(r chi.Router) {
		// 登録・ログイン（IP単位のレート制限）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.RegisterMiddleware())
			r.Post("/auth/login-firebase", authHandler.LoginFirebase)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/google-auth", authHandler.GoogleAuth)
		})

		// 参照データと企業状態の照会
		r.Get("/plans", refHandler.ListPlans)
		r.Get("/companies/types", refHandler.ListCompanyTypes)
		r.Get("/users/check-company/{accountId}", userHandler.CheckCompany)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.Tokens))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/auth/me", authHandler.Me)
			r.Post("/users/complete-company-setup", userHandler.CompleteCompanySetup)
		})
	})

	// ローカルIDプロバイダーのサインアップとサインイン（開発モードのみ）
	if deps.LocalIdentity != nil {
		localHandler := NewLocalIdentityHandler(deps.LocalIdentity)
		r.With(deps.RateLimiter.RegisterMiddleware()).Post("/local-identity/signup", localHandler.SignUp)
		r.With(deps.RateLimiter.RegisterMiddleware()).Post("/local-identity/signin", localHandler.SignIn)
	}

	return r
}

// newHealthHandler はヘルスチェックハンドラーを返す。
// DBが設定されている場合は疎通も確認する。
func newHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"status": "unavailable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
		})
	}
}
