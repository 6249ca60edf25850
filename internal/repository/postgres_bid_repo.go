package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/model"
)

// PostgresBidRepo はPostgreSQLを使用した入札リポジトリ。
type PostgresBidRepo struct {
	db *sql.DB
}

// NewPostgresBidRepo はPostgresBidRepoを生成する。
func NewPostgresBidRepo(db *sql.DB) *PostgresBidRepo {
	return &PostgresBidRepo{db: db}
}

// InsertIfLeading は対象オークションの行ロックを取ったうえで、
// 検証述語（active・未終了・閾値超過）を条件に持つINSERTで入札を記録する。
//
// READ COMMITTEDではINSERT文の述語が文開始時点のスナップショットで評価されるため、
// ロックなしでは並行する2つの入札が互いの行を見ないまま両方とも述語を満たしうる。
// 先頭のSELECT ... FOR UPDATEが同一オークションへの入札同士と、
// CloseIfActiveのステータス更新をオークション行で直列化し、
// ロック獲得後のINSERTはコミット済みの最新状態に対して述語を再評価する。
// 述語を満たさない場合は行を挿入せず (nil, nil) を返す。
func (r *PostgresBidRepo) InsertIfLeading(ctx context.Context, auctionID, userID int64, amount decimal.Decimal, now time.Time) (*model.Bid, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("入札トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var lockedID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM auctions WHERE id = $1 FOR UPDATE`,
		auctionID,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("オークション行のロックに失敗しました: %w", err)
	}

	bid := &model.Bid{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		BidTime:   now,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO bids (auction_id, user_id, amount, bid_time)
		 SELECT a.id, $2, $3, $4
		 FROM auctions a
		 WHERE a.id = $1
		   AND a.status = 'active'
		   AND a.end_time > $4
		   AND $3::numeric > GREATEST(
		         a.base_price,
		         COALESCE((SELECT MAX(b.amount) FROM bids b WHERE b.auction_id = a.id), 0)
		       )
		 RETURNING id`,
		auctionID, userID, amount, now,
	).Scan(&bid.ID)

	if err == sql.ErrNoRows {
		// 述語不成立: 終了済み・金額不足のいずれか
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("入札の記録に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("入札トランザクションのコミットに失敗しました: %w", err)
	}

	return bid, nil
}

// HighestBid はオークションの現在の最高入札を返す。
// 金額降順、同額は入札時刻の早い順。入札がない場合はnilを返す。
func (r *PostgresBidRepo) HighestBid(ctx context.Context, auctionID int64) (*model.BidWithBidder, error) {
	bid := &model.BidWithBidder{}
	err := r.db.QueryRowContext(ctx,
		`SELECT b.id, b.auction_id, b.user_id, b.amount, b.bid_time, u.username
		 FROM bids b
		 INNER JOIN users u ON u.id = b.user_id
		 WHERE b.auction_id = $1
		 ORDER BY b.amount DESC, b.bid_time ASC
		 LIMIT 1`,
		auctionID,
	).Scan(&bid.ID, &bid.AuctionID, &bid.UserID, &bid.Amount, &bid.BidTime, &bid.BidderName)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最高入札の取得に失敗しました: %w", err)
	}

	return bid, nil
}

// ListByAuction はオークションの入札履歴を金額降順で返す。
func (r *PostgresBidRepo) ListByAuction(ctx context.Context, auctionID int64) ([]model.BidWithBidder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.auction_id, b.user_id, b.amount, b.bid_time, u.username
		 FROM bids b
		 INNER JOIN users u ON u.id = b.user_id
		 WHERE b.auction_id = $1
		 ORDER BY b.amount DESC, b.bid_time ASC`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("入札履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var bids []model.BidWithBidder
	for rows.Next() {
		bid := model.BidWithBidder{}
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.UserID, &bid.Amount, &bid.BidTime, &bid.BidderName); err != nil {
			return nil, fmt.Errorf("入札行の読み取りに失敗しました: %w", err)
		}
		bids = append(bids, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("入札行の走査に失敗しました: %w", err)
	}

	return bids, nil
}

// LatestBidTime はオークションへの最新の入札時刻を返す。
// 入札がない場合はnilを返す。
func (r *PostgresBidRepo) LatestBidTime(ctx context.Context, auctionID int64) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(bid_time) FROM bids WHERE auction_id = $1`,
		auctionID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("最新入札時刻の取得に失敗しました: %w", err)
	}

	if !latest.Valid {
		return nil, nil
	}

	t := latest.Time.UTC()
	return &t, nil
}

// ListBidderIDs はオークションに入札した重複なしのユーザーID一覧を返す。
func (r *PostgresBidRepo) ListBidderIDs(ctx context.Context, auctionID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM bids WHERE auction_id = $1`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("入札者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("入札者IDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("入札者一覧の走査に失敗しました: %w", err)
	}

	return ids, nil
}

// ListUserBestBids はユーザーのオークションごとの最高入札サマリを返す。
// is_leadingは「勝者決定と同じ順序（金額降順、同額は早い入札時刻）での先頭入札が
// 自分のものか」で判定する。
func (r *PostgresBidRepo) ListUserBestBids(ctx context.Context, userID int64) ([]model.UserBidSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.end_time, a.status,
		        MAX(b.amount) AS best_amount,
		        (SELECT MAX(b2.amount) FROM bids b2 WHERE b2.auction_id = a.id) AS highest_amount,
		        (SELECT b3.user_id FROM bids b3 WHERE b3.auction_id = a.id
		         ORDER BY b3.amount DESC, b3.bid_time ASC LIMIT 1) = $1 AS is_leading
		 FROM bids b
		 INNER JOIN auctions a ON a.id = b.auction_id
		 WHERE b.user_id = $1
		 GROUP BY a.id, a.title, a.end_time, a.status
		 ORDER BY a.end_time DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("入札サマリの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var summaries []model.UserBidSummary
	for rows.Next() {
		s := model.UserBidSummary{}
		if err := rows.Scan(&s.AuctionID, &s.AuctionTitle, &s.EndTime, &s.Status,
			&s.BestAmount, &s.HighestAmount, &s.IsLeading); err != nil {
			return nil, fmt.Errorf("入札サマリ行の読み取りに失敗しました: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("入札サマリの走査に失敗しました: %w", err)
	}

	return summaries, nil
}

// compile-time interface check
var _ BidRepository = (*PostgresBidRepo)(nil)
