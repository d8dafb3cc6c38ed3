// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tasktracker/internal/auth"
	"github.com/hitoshi/tasktracker/internal/middleware"
	"github.com/hitoshi/tasktracker/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, idToken string) (*auth.LoginResult, error)
}

// LoginMetricsRecorder はログイン結果のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type LoginMetricsRecorder interface {
	RecordLoginSuccess()
	RecordLoginFailure()
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieName          string
	CookieSecure        bool
	CookieMaxAgeSeconds int // セッショントークンの有効期間（秒）と一致させる
}

// AuthHandler はGoogleログインとセッションCookie管理のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics LoginMetricsRecorder
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// metricsがnilの場合は何も記録しない。
func NewAuthHandler(service AuthServiceInterface, metrics LoginMetricsRecorder, config AuthHandlerConfig) *AuthHandler {
	if metrics == nil {
		metrics = noopLoginMetrics{}
	}
	return &AuthHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

// noopLoginMetrics はメトリクス未設定時のプレースホルダー。
type noopLoginMetrics struct{}

func (noopLoginMetrics) RecordLoginSuccess() {}
func (noopLoginMetrics) RecordLoginFailure() {}

// googleAuthRequest はGoogleログインのリクエストボディ。
type googleAuthRequest struct {
	IDToken string `json:"idToken"`
}

// authResponse はログイン成功時のレスポンスボディ。
type authResponse struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Google はGoogleのIDトークンをローカルセッションに交換する。
// POST /api/auth/google
//
// 成功時は新しいセッションCookieを設定し、{userId, email, name}を返す。
// 失敗レスポンスはCookieを持たない。設定不備は500、トークン不正は401で、
// どちらも内部詳細を含まない固定メッセージのみを返す。
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req googleAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("idToken: invalid request body"))
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("idToken: must not be blank"))
		return
	}

	result, err := h.service.Login(r.Context(), req.IDToken)
	if err != nil {
		h.metrics.RecordLoginFailure()

		switch {
		case errors.Is(err, auth.ErrAudienceNotConfigured):
			// 運用者の設定ミス。クライアント起因のエラーと区別してログに残す
			slog.Error("login misconfiguration", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
		case errors.Is(err, auth.ErrInvalidAssertion):
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		default:
			slog.Error("login failed", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
		}
		return
	}

	h.metrics.RecordLoginSuccess()

	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   h.config.CookieMaxAgeSeconds,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authResponse{
		UserID: result.User.ID,
		Email:  result.User.Email,
		Name:   result.User.Name,
	})
}

// Logout はセッションCookieをクリアする。
// POST /api/auth/logout
//
// トークンはステートレスでサーバー側に失効させる状態が無いため、
// 事前のセッション有無によらず常に成功する。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusOK)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"userId": principal.UserID,
		"email":  principal.Email,
	})
}
