// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// GoogleSubはGoogleが発行する安定したサブジェクト識別子で、
// ローカルユーザーレコードとの結合キーとして使用する。
type User struct {
	ID        int64
	GoogleSub string
	Email     string
	Name      string
	CreatedAt time.Time
}

// SessionPrincipal はセッショントークンから復元される認証済みユーザー情報。
// サーバー側には永続化せず、リクエストごとにトークンの署名付きクレームから再構築する。
type SessionPrincipal struct {
	UserID int64
	Email  string
}

// VerifiedIdentity はIDプロバイダーのトークン検証で得られるユーザー情報。
// ExternalIDは常に非空。Email・DisplayNameはプロバイダーが省略した場合に空になりうる。
type VerifiedIdentity struct {
	ExternalID  string
	Email       string
	DisplayName string
}
