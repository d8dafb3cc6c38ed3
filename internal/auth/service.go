// Package auth はGoogle IDトークンの検証とセッション発行のビジネスロジックを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
)

// IdentityVerifier はIDプロバイダーのトークン検証インターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type IdentityVerifier interface {
	// Verify はIDトークンを検証し、外部識別子とプロフィールクレームを返す。
	Verify(ctx context.Context, assertion string) (*model.VerifiedIdentity, error)
}

// TokenIssuer はセッショントークンの発行インターフェース。
// token.Codecの部分集合として定義する。
type TokenIssuer interface {
	Issue(userID int64, email string) (string, error)
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User  *model.User
	Token string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier IdentityVerifier
	userRepo repository.UserRepository
	issuer   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(verifier IdentityVerifier, userRepo repository.UserRepository, issuer TokenIssuer) *Service {
	return &Service{
		verifier: verifier,
		userRepo: userRepo,
		issuer:   issuer,
	}
}

// Login はIDトークンを検証し、ローカルユーザーを解決してセッショントークンを発行する。
// ユーザーレコードは外部識別子をキーにアップサートする: 初回ログインで作成し、
// 再ログインではemailと表示名を最新のクレームで更新する。
// 検証エラー（ErrInvalidAssertion / ErrAudienceNotConfigured）はそのまま伝搬し、
// ハンドラー側でHTTPステータスに変換する。
func (s *Service) Login(ctx context.Context, idToken string) (*LoginResult, error) {
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.UpsertByGoogleSub(ctx, identity.ExternalID, identity.Email, identity.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	sessionToken, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &LoginResult{
		User:  user,
		Token: sessionToken,
	}, nil
}
