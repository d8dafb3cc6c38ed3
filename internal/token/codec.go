// Package token はサーバー自身が署名するセッショントークンの発行と検証を提供する。
// トークンはIDプロバイダーのトークンとは独立したHS256署名のJWTで、
// 有効期限内であることがアクティブなセッションの唯一の証明となる（サーバー側に失効リストは持たない）。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/tasktracker/internal/model"
)

// ErrInvalidSession は構造不正・署名不一致・期限切れ・アルゴリズム不一致のいずれかを示す。
// 呼び出し元が失敗理由を区別できないよう、検証失敗は常にこの1種類に集約する。
var ErrInvalidSession = errors.New("invalid session token")

// minSecretBytes は署名シークレットの最小長。
// ブルートフォース可能な鍵でのデプロイを構成時点で防ぐ。
const minSecretBytes = 32

// sessionClaims はセッショントークンの署名付きクレーム。
// subjectにはユーザーIDの10進表現、emailには発行時のメールアドレスを埋め込む。
type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Codec はセッショントークンの発行・検証を行う。
// 鍵素材は生成後イミュータブルで、検証は読み取り専用のため並行呼び出しに対してロック不要。
type Codec struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewCodec はCodecを生成する。
// secretが32バイト未満の場合は生成を拒否する。これは起動時の設定エラーであり、
// リクエスト単位のエラーとして扱ってはならない。
func NewCodec(secret string, lifetime time.Duration) (*Codec, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes", minSecretBytes)
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	return &Codec{
		key:      []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// Issue は指定ユーザーのセッショントークンを発行する。
// issuedAt=now、expiresAt=now+lifetimeを刻印する。有効期限は固定で、スライドしない。
func (c *Codec) Issue(userID int64, email string) (string, error) {
	now := c.now()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を1つの検証ステップとして確認し、
// 埋め込まれたSessionPrincipalを復元する。
// HS256以外のアルゴリズム、数値でないsubjectはすべてErrInvalidSessionとして扱う。
// クロックスキューの猶予は与えない。
func (c *Codec) Verify(tokenStr string) (*model.SessionPrincipal, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidSession
	}

	return &model.SessionPrincipal{
		UserID: userID,
		Email:  claims.Email,
	}, nil
}

// Lifetime は設定されたトークンの有効期間を返す。
// CookieのMax-Ageの算出に使用する。
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}
