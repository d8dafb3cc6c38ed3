// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("session_principal")

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
// token.Codecの部分集合として定義する。
type SessionVerifier interface {
	Verify(tokenStr string) (*model.SessionPrincipal, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 検証に成功した場合のみSessionPrincipalをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い・トークンが不正や期限切れの場合は未認証のままリクエストを通過させる。
// 不正なCookieを理由にパイプラインを中断することはなく、
// 未認証アクセスの拒否は保護ルート側の認可（RequireAuth）が担う。
func NewSessionMiddleware(verifier SessionVerifier, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 先行ステージで認証済みの場合は何もしない
			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				// 匿名リクエストは正当。エラーではない
				next.ServeHTTP(w, r)
				return
			}

			principal, err := verifier.Verify(cookie.Value)
			if err != nil {
				// 期限切れ・改ざん・構造不正はすべて「セッションなし」として扱う
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// セッションミドルウェアを通過し、かつ有効なセッションを持つリクエストでのみ取得できる。
func PrincipalFromContext(ctx context.Context) (*model.SessionPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*model.SessionPrincipal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal *model.SessionPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// RequireAuth は認証済みユーザーのみにアクセスを許可するミドルウェア。
// コンテキストにSessionPrincipalが無いリクエストには401を返す。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}
