// Package auth はユーザー登録・ログインと署名付きトークンの発行・検証を提供する。
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/auctiond/internal/clock"
	"github.com/hitoshi/auctiond/internal/model"
)

// tokenClaims はトークンに埋め込むクレーム。
// {id, username} の組で、ストアへの問い合わせなしに検証できる。
type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService は署名付きトークンの発行と検証を行う。
// HS256で署名し、検証時はアルゴリズムを固定する。
type TokenService struct {
	secret []byte
	maxAge time.Duration
	clock  clock.Clock
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string, maxAge time.Duration, clk clock.Clock) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		maxAge: maxAge,
		clock:  clk,
	}
}

// Issue は認証済みアイデンティティに対するトークンを発行する。
func (s *TokenService) Issue(identity model.Identity) (string, error) {
	now := s.clock.Now()

	claims := tokenClaims{
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}

	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたアイデンティティを返す。
// 署名不正・期限切れ・クレーム欠落はいずれもInvalidTokenエラーになる。
func (s *TokenService) Verify(tokenString string) (*model.Identity, error) {
	claims := &tokenClaims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return nil, model.NewInvalidTokenError()
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.Username == "" {
		return nil, model.NewInvalidTokenError()
	}

	return &model.Identity{
		UserID:   userID,
		Username: claims.Username,
	}, nil
}
