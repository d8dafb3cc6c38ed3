package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tasktracker/internal/middleware"
)

// loginPath はログインエンドポイントのパス。
// レート制限ミドルウェアのmethod+pathマッチにも使用する。
const loginPath = "/api/auth/google"

// HealthChecker はヘルスチェックに必要なインターフェース。sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	LoginLimiter      middleware.AdmissionLimiter
	APIRateLimiter    *middleware.APIRateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// メトリクス
	HTTPMetrics    middleware.HTTPMetricsRecorder
	LoginMetrics   LoginMetricsRecorder
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// タスク
	TaskService TaskServiceInterface

	// ヘルスチェック
	HealthChecker HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → Metrics → SecurityHeaders → CORS
//	→ LoginRateLimit → Session → ルートディスパッチ
//
// レート制限はログインルートのみを対象とするが、認証の副作用を受けずに
// 生のリクエストを判定できるよう、セッションミドルウェアより前段に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoginRateLimitMiddleware(deps.LoginLimiter, http.MethodPost, loginPath))
	r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier, deps.AuthConfig.CookieName))

	authHandler := NewAuthHandler(deps.AuthService, deps.LoginMetrics, deps.AuthConfig)
	taskHandler := NewTaskHandler(deps.TaskService)

	// --- 認証不要のルート ---

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/google", authHandler.Google)
		r.Post("/logout", authHandler.Logout)
	})

	// /api/me はハンドラー自身がprincipalの有無で401を返す
	r.Get("/api/me", authHandler.Me)

	r.Get("/healthz", newHealthHandler(deps.HealthChecker))

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: RequireAuth → APIRateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		if deps.APIRateLimiter != nil {
			r.Use(deps.APIRateLimiter.Middleware())
		}

		r.Route("/api/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.CreateTask)
			r.Get("/", taskHandler.ListTasks)

			r.Route("/{taskId}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Put("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
			})
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		if checker == nil || checker.PingContext(ctx) != nil {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
