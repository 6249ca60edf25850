// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成し、IDを採番してuserに書き戻す。
	// ユーザー名が重複している場合はIsUniqueViolationで判定可能なエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// AuctionRepository はオークションデータの永続化インターフェース。
// statusの active → ended 遷移はCloseIfActive経由でのみ行う。
type AuctionRepository interface {
	// Create はオークションを作成し、IDを採番してauctionに書き戻す。
	Create(ctx context.Context, auction *model.Auction) error

	// FindByID は指定IDのオークションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Auction, error)

	// List はオークション一覧を終了時刻の昇順で返す。
	// onlyActiveがtrueの場合はstatus = 'active'のみを返す。
	List(ctx context.Context, onlyActive bool, limit int) ([]*model.Auction, error)

	// SnapshotByID は入札検証に必要なオークションの断面を取得する。
	// 現在の最高入札額を同一クエリで取得する。見つからない場合はnilを返す。
	SnapshotByID(ctx context.Context, id int64) (*model.AuctionSnapshot, error)

	// ListDueForClose は終了時刻を過ぎたactiveなオークションを返す。
	// end_time <= now かつ status = 'active'。
	ListDueForClose(ctx context.Context, now time.Time) ([]*model.Auction, error)

	// CloseIfActive はstatusをactiveからendedへ条件付きで遷移させる。
	// 更新できた場合はtrueを返す。falseは別のスイープが先に閉じたことを意味し、
	// 呼び出し側は勝者計算と通知をスキップしなければならない。
	CloseIfActive(ctx context.Context, id int64, now time.Time) (bool, error)
}

// BidRepository は入札データの永続化インターフェース。
// 入札行の作成はInsertIfLeading経由でのみ行い、作成後の更新・削除はしない。
type BidRepository interface {
	// InsertIfLeading はオークション行のロック下で条件付きINSERTにより入札を記録する。
	// 述語: オークションがactive、end_time > now、かつ
	// amount > max(base_price, 既存最高入札額)。
	// 述語を満たさない場合は行を挿入せず (nil, nil) を返す。
	// 同一オークションへの並行入札とステータス更新は直列化され、両方成功することはない。
	InsertIfLeading(ctx context.Context, auctionID, userID int64, amount decimal.Decimal, now time.Time) (*model.Bid, error)

	// HighestBid はオークションの現在の最高入札を返す。
	// 金額降順、同額は入札時刻の早い順。入札がない場合はnilを返す。
	HighestBid(ctx context.Context, auctionID int64) (*model.BidWithBidder, error)

	// ListByAuction はオークションの入札履歴を金額降順で返す。
	ListByAuction(ctx context.Context, auctionID int64) ([]model.BidWithBidder, error)

	// LatestBidTime はオークションへの最新の入札時刻を返す。
	// 入札がない場合はnilを返す。スイープの猶予判定で使用する。
	LatestBidTime(ctx context.Context, auctionID int64) (*time.Time, error)

	// ListBidderIDs はオークションに入札した重複なしのユーザーID一覧を返す。
	ListBidderIDs(ctx context.Context, auctionID int64) ([]int64, error)

	// ListUserBestBids はユーザーのオークションごとの最高入札サマリを返す。
	ListUserBestBids(ctx context.Context, userID int64) ([]model.UserBidSummary, error)
}

// NotificationRepository は通知データの永続化インターフェース。
type NotificationRepository interface {
	// CreateUnique は通知を冪等に作成する。
	// 結果カテゴリで同一 (auction, user, category) の通知が既に存在する場合は
	// 何もせずfalseを返す。一意性はDBの一意インデックスとON CONFLICT DO NOTHINGで
	// 保証する。outbidは一意性の対象外で常に新しい行が作られる。
	CreateUnique(ctx context.Context, n *model.Notification) (bool, error)

	// ListByUser はユーザー宛の通知を作成時刻の降順で返す。
	ListByUser(ctx context.Context, userID int64) ([]*model.Notification, error)

	// MarkRead は指定通知を既読にする。
	// 通知が存在しないか他ユーザー宛の場合はfalseを返す。
	MarkRead(ctx context.Context, id, userID int64) (bool, error)

	// MarkAllRead はユーザー宛の全未読通知を既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID int64) (int64, error)

	// Delete は指定通知を削除する。
	// 通知が存在しないか他ユーザー宛の場合はfalseを返す。
	Delete(ctx context.Context, id, userID int64) (bool, error)

	// DeleteRead はユーザー宛の既読通知をすべて削除し、削除件数を返す。
	DeleteRead(ctx context.Context, userID int64) (int64, error)

	// DeleteOlderThan は保持期間を超過した既読通知を削除し、削除件数を返す。
	// クリーンアップジョブから使用する。
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}
