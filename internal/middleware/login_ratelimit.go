package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/hitoshi/tasktracker/internal/model"
)

// AdmissionLimiter はログイン経路の許可判定に必要なインターフェース。
// ratelimit.FixedWindowLimiterの部分集合として定義する。
type AdmissionLimiter interface {
	Allow(key string) bool
}

// NewLoginRateLimitMiddleware はログインエンドポイントへのリクエストを
// クライアントアドレス単位でレート制限するミドルウェアを返す。
// method+pathが一致するリクエストのみを対象とし、それ以外は素通しする。
// セッションミドルウェアより前段に配置し、認証状態の影響を受けずに判定する。
func NewLoginRateLimitMiddleware(limiter AdmissionLimiter, method, path string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method || r.URL.Path != path {
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r)

			if !limiter.Allow(key) {
				slog.Warn("login rate limit exceeded",
					slog.String("client", key),
				)
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey はレート制限のキーとなるクライアントアドレスを導出する。
// プロキシ/ALB配下を想定し、X-Forwarded-Forが非空の場合はその先頭エントリを優先する。
func clientKey(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
