package auth

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/auctiond/internal/clock"
	"github.com/hitoshi/auctiond/internal/model"
	"github.com/hitoshi/auctiond/internal/repository"
)

// Service はユーザー登録・ログインのビジネスロジックを提供する。
type Service struct {
	userRepo   repository.UserRepository
	tokens     *TokenService
	bcryptCost int
	clock      clock.Clock
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenService, bcryptCost int, clk clock.Clock) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:   userRepo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		clock:      clk,
	}
}

// Register は新規ユーザーを作成し、トークンを発行する。
// ユーザー名が使用済みの場合はUSERNAME_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, string, error) {
	if err := validateUsername(username); err != nil {
		return nil, "", err
	}
	if utf8.RuneCountInString(password) < 8 {
		return nil, "", &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "パスワードは8文字以上で指定してください。",
			Category: "validation",
			Action:   "より長いパスワードを設定してください。",
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, "", model.NewUsernameTakenError(username)
		}
		return nil, "", err
	}

	token, err := s.tokens.Issue(model.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, "", err
	}

	slog.Info("new user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, token, nil
}

// Login はユーザー名とパスワードを検証し、トークンを発行する。
// ユーザー不在とパスワード不一致は同じINVALID_CREDENTIALSエラーになる。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(model.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, "", err
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, token, nil
}

// CurrentUser は認証済みユーザーIDからユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// validateUsername はユーザー名の形式を検証する。
func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < 3 || n > 32 {
		return &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "ユーザー名は3〜32文字で指定してください。",
			Category: "validation",
			Action:   "長さの条件を満たすユーザー名を指定してください。",
		}
	}
	for _, r := range username {
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isUpper && !isDigit && r != '_' && r != '-' {
			return &model.APIError{
				Code:     model.ErrCodeInvalidRequest,
				Message:  "ユーザー名に使用できない文字が含まれています。",
				Category: "validation",
				Action:   "英数字、アンダースコア、ハイフンのみ使用できます。",
			}
		}
	}
	return nil
}
