package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tasktracker/internal/model"
)

// APIRateLimiterConfig は認証済みAPIルートのレート制限設定を保持する。
type APIRateLimiterConfig struct {
	Rate            rate.Limit    // レート（req/sec）。120/60 = 2 req/sec
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultAPIRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: API全般 120 req/min/user
func DefaultAPIRateLimiterConfig(requestsPerMinute int) APIRateLimiterConfig {
	return APIRateLimiterConfig{
		Rate:            rate.Limit(float64(requestsPerMinute) / 60.0),
		Burst:           requestsPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// APIRateLimiter は認証済みユーザーごとのトークンバケット型レート制限を管理する。
// ログインエンドポイントの固定ウィンドウ制限とは独立に動作する。
type APIRateLimiter struct {
	config APIRateLimiterConfig

	mu       sync.RWMutex
	limiters map[int64]*userLimiter

	stopCh chan struct{}
}

// NewAPIRateLimiter は新しいAPIRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewAPIRateLimiter(config APIRateLimiterConfig) *APIRateLimiter {
	rl := &APIRateLimiter{
		config:   config,
		limiters: make(map[int64]*userLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *APIRateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware は認証済みAPIルートのレート制限ミドルウェアを返す。
// リクエストコンテキストにSessionPrincipalが含まれている必要がある
// （RequireAuthの後に配置する）。
func (rl *APIRateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			limiter := rl.getOrCreateLimiter(principal.UserID)

			if !limiter.Allow() {
				retryAfterSec := int(math.Ceil(1.0 / float64(rl.config.Rate)))
				if retryAfterSec < 1 {
					retryAfterSec = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
				slog.Warn("api rate limit exceeded",
					slog.Int64("user_id", principal.UserID),
				)
				WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
					Code:    model.ErrCodeRateLimited,
					Message: "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *APIRateLimiter) LimiterCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// getOrCreateLimiter はユーザーのリミッターを取得または作成する。
func (rl *APIRateLimiter) getOrCreateLimiter(userID int64) *rate.Limiter {
	rl.mu.RLock()
	ul, exists := rl.limiters[userID]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		ul.lastAccess = time.Now()
		rl.mu.Unlock()
		return ul.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック
	if ul, exists := rl.limiters[userID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.limiters[userID] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *APIRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *APIRateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.mu.Lock()
	for userID, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.limiters, userID)
		}
	}
	rl.mu.Unlock()
}
