package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Codeは機械可読なエラーコード、Messageはユーザー向けメッセージ。
// 内部エラーの詳細（スタックトレース、プロバイダーのエラー文字列）は含めない。
type APIError struct {
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternalError   = "INTERNAL_SERVER_ERROR"
)

// NewRateLimitedError はログイン試行のレート制限エラーを生成する。
// ペイロードは固定で、クライアントに内部状態を推測させない。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many login attempts. Try again shortly.",
	}
}

// NewInvalidTokenError はIDトークン検証失敗のエラーを生成する。
// 失敗理由（署名・audience・期限切れ等）によらず同一のメッセージを返す。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidToken,
		Message: "Invalid Google ID token",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeValidationError,
		Message: message,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "Not authenticated",
	}
}

// NewInternalError は内部サーバーエラーの統一レスポンスを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternalError,
		Message: "An unexpected error occurred",
	}
}
