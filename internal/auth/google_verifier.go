package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/tasktracker/internal/model"
)

const (
	defaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	defaultJWKSCacheTTL  = 1 * time.Hour
)

// googleIssuers はGoogleのIDトークンで許容されるissuer値。
var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// ErrInvalidAssertion はIDトークンの検証失敗を示す。
// 署名不正・audience不一致・期限切れ・構造不正のいずれであっても同一のエラーに集約し、
// 攻撃者に失敗理由のオラクルを与えない。
var ErrInvalidAssertion = errors.New("invalid identity token")

// ErrAudienceNotConfigured は期待するaudience（Googleクライアント ID）が
// サーバーに設定されていないことを示す。クライアント起因ではなく運用者のミス。
var ErrAudienceNotConfigured = errors.New("GOOGLE_CLIENT_ID is not set on the backend")

// GoogleVerifierConfig はGoogle IDトークン検証の設定。
type GoogleVerifierConfig struct {
	// Audience は期待するaudience値（GoogleクライアントID）。
	Audience string

	// JWKSURL はGoogleの公開鍵セットの取得先。テスト用にオーバーライド可能。
	JWKSURL string

	// CacheTTL は公開鍵キャッシュの有効期間。デフォルト1時間。
	CacheTTL time.Duration

	// HTTPClient はテスト用に差し替え可能なHTTPクライアント。
	HTTPClient *http.Client
}

// GoogleVerifier はGoogleが発行したIDトークンを検証し、
// 安定した外部識別子とプロフィールクレームを取り出す。
type GoogleVerifier struct {
	config    GoogleVerifierConfig
	jwksCache *jwksCache
}

// NewGoogleVerifier はGoogleVerifierを生成する。
func NewGoogleVerifier(config GoogleVerifierConfig) *GoogleVerifier {
	if config.JWKSURL == "" {
		config.JWKSURL = defaultGoogleJWKSURL
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaultJWKSCacheTTL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &GoogleVerifier{
		config: config,
		jwksCache: &jwksCache{
			keys:    make(map[string]*rsa.PublicKey),
			ttl:     config.CacheTTL,
			jwksURL: config.JWKSURL,
			client:  config.HTTPClient,
		},
	}
}

// googleClaims はGoogleのIDトークンに含まれるクレーム。
type googleClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verify はIDトークンの署名・issuer・audience・有効期限を現在の公開鍵で検証する。
// audienceが未設定の場合はErrAudienceNotConfiguredで即座に失敗する。
// 検証失敗はすべてErrInvalidAssertionとなり、成功時はExternalIDが必ず非空。
func (v *GoogleVerifier) Verify(ctx context.Context, assertion string) (*model.VerifiedIdentity, error) {
	if v.config.Audience == "" {
		return nil, ErrAudienceNotConfigured
	}

	claims := &googleClaims{}
	parsed, err := jwt.ParseWithClaims(assertion, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		key, fetchErr := v.jwksCache.getKey(ctx, kid)
		if fetchErr != nil {
			return nil, fmt.Errorf("fetching JWKS key for kid %q: %w", kid, fetchErr)
		}

		return key, nil
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.config.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		slog.Debug("google ID token validation failed", slog.String("error", fmt.Sprint(err)))
		return nil, ErrInvalidAssertion
	}

	if !issuerAllowed(claims.Issuer) {
		return nil, ErrInvalidAssertion
	}

	// subjectが空のトークンは識別子として使えないため不正扱い
	if claims.Subject == "" {
		return nil, ErrInvalidAssertion
	}

	return &model.VerifiedIdentity{
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// issuerAllowed はissuerがGoogleの発行者のいずれかと一致するかを返す。
func issuerAllowed(issuer string) bool {
	for _, iss := range googleIssuers {
		if issuer == iss {
			return true
		}
	}
	return false
}

// jwksCache はJWKSエンドポイントから取得したRSA公開鍵をkidごとにキャッシュする。
// TTLベースで失効し、並行アクセスに対して安全。
type jwksCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	ttl       time.Duration
	jwksURL   string
	client    *http.Client
}

// getKey は指定kidのRSA公開鍵を返す。
// キャッシュが失効しているか未知のkidの場合はJWKSエンドポイントから再取得する。
func (c *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// ダブルチェック（他のゴルーチンが再取得済みの可能性がある）
	if key, ok := c.keys[kid]; ok && time.Since(c.fetchedAt) < c.ttl {
		return key, nil
	}

	if err := c.fetchJWKS(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}

	return key, nil
}

// fetchJWKS はJWKSを取得して鍵キャッシュを更新する。書き込みロック保持中に呼ぶこと。
func (c *jwksCache) fetchJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("JWKS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}

		pubKey, err := parseRSAPublicKey(k)
		if err != nil {
			slog.Warn("skipping JWKS key", slog.String("kid", k.Kid), slog.String("error", err.Error()))
			continue
		}

		keys[k.Kid] = pubKey
	}

	c.keys = keys
	c.fetchedAt = time.Now()

	return nil
}

// jwksDocument はJWKSレスポンスを表す。
type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey は単一のJSON Web Keyを表す。
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// parseRSAPublicKey はJWKから*rsa.PublicKeyを構築する。
func parseRSAPublicKey(k jwkKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	if !e.IsInt64() {
		return nil, fmt.Errorf("RSA exponent too large")
	}

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
