// Package model はドメインモデルを定義する。
package model

import "time"

// NotificationCategory は通知の種別タグを表す。
// 同一 (auction, user, category) の組み合わせに対して通知は最大1件しか作られない。
type NotificationCategory string

const (
	// NotificationCategoryWinner は落札者向けの結果通知。
	NotificationCategoryWinner NotificationCategory = "winner"
	// NotificationCategoryLoser は落札できなかった入札者向けの結果通知。
	NotificationCategoryLoser NotificationCategory = "loser"
	// NotificationCategoryNoBids は入札ゼロで終了したことを出品者へ伝える通知。
	NotificationCategoryNoBids NotificationCategory = "no_bids"
	// NotificationCategoryOutbid は最高額を更新されたことを伝える通知。
	NotificationCategoryOutbid NotificationCategory = "outbid"
)

// Notification は永続化される通知を表す。
// UserIDがnilの場合は特定の宛先を持たないブロードキャスト通知。
type Notification struct {
	ID        int64
	UserID    *int64
	AuctionID int64
	Message   string
	Category  NotificationCategory
	IsRead    bool
	CreatedAt time.Time
}
