// Package model はドメインモデルを定義する。
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, bid, auction, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuctionNotFound      = "AUCTION_NOT_FOUND"
	ErrCodeAuctionClosed        = "AUCTION_CLOSED"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeBidTooLow            = "BID_TOO_LOW"
	ErrCodeInvalidAuctionTimes  = "INVALID_AUCTION_TIMES"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
)

// NewAuctionNotFoundError はオークション未検出エラーを生成する。
func NewAuctionNotFoundError(auctionID int64) *APIError {
	return &APIError{
		Code:     ErrCodeAuctionNotFound,
		Message:  fmt.Sprintf("指定されたオークションが見つかりません: %d", auctionID),
		Category: "auction",
		Action:   "オークションIDを確認してください。",
	}
}

// NewAuctionClosedError は終了済みオークションへの入札エラーを生成する。
func NewAuctionClosedError(auctionID int64) *APIError {
	return &APIError{
		Code:     ErrCodeAuctionClosed,
		Message:  fmt.Sprintf("オークションは終了しています: %d", auctionID),
		Category: "bid",
		Action:   "開催中のオークションに入札してください。",
	}
}

// NewInvalidAmountError は不正な入札額エラーを生成する。
func NewInvalidAmountError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  "入札額は正の数値で指定してください。",
		Category: "validation",
		Action:   "0より大きい金額を入力してください。",
	}
}

// NewBidTooLowError は入札額不足エラーを生成する。
// ユーザーが上回るべき閾値（max(開始価格, 現在最高額)）をメッセージに含める。
func NewBidTooLowError(threshold decimal.Decimal) *APIError {
	return &APIError{
		Code:     ErrCodeBidTooLow,
		Message:  fmt.Sprintf("入札額が不足しています。%s を上回る金額が必要です。", threshold.String()),
		Category: "bid",
		Action:   fmt.Sprintf("%s より大きい金額で入札してください。", threshold.String()),
	}
}

// NewInvalidAuctionTimesError はオークション期間が不正な場合のエラーを生成する。
func NewInvalidAuctionTimesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAuctionTimes,
		Message:  fmt.Sprintf("オークション期間が不正です: %s", reason),
		Category: "validation",
		Action:   "開始時刻より後の終了時刻を指定してください。",
	}
}

// NewUnauthorizedError は認証が必要なことを示すエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidTokenError はトークンが無効・期限切れであることを示すエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "再度ログインしてトークンを取得し直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "自分が所有するリソースに対してのみ操作できます。",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("このユーザー名は既に使用されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー名の存在有無を区別しないメッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNotificationNotFoundError は通知未検出エラーを生成する。
func NewNotificationNotFoundError(notificationID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNotificationNotFound,
		Message:  fmt.Sprintf("指定された通知が見つかりません: %d", notificationID),
		Category: "validation",
		Action:   "通知IDを確認してください。",
	}
}
