// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptでソルト付きハッシュ化された認証情報。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity は署名付きトークンから復元される認証済みアイデンティティ。
// ストアへの問い合わせなしに検証可能な {id, username} の組。
type Identity struct {
	UserID   int64
	Username string
}
