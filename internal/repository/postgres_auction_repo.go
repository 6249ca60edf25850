package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/auctiond/internal/model"
)

// PostgresAuctionRepo はPostgreSQLを使用したオークションリポジトリ。
type PostgresAuctionRepo struct {
	db *sql.DB
}

// NewPostgresAuctionRepo はPostgresAuctionRepoを生成する。
func NewPostgresAuctionRepo(db *sql.DB) *PostgresAuctionRepo {
	return &PostgresAuctionRepo{db: db}
}

// Create はオークションを作成し、採番されたIDをauctionに書き戻す。
func (r *PostgresAuctionRepo) Create(ctx context.Context, auction *model.Auction) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO auctions (owner_id, title, description, base_price,
		                       start_time, end_time, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		auction.OwnerID, auction.Title, auction.Description, auction.BasePrice,
		auction.StartTime, auction.EndTime, auction.Status,
		auction.CreatedAt, auction.UpdatedAt,
	).Scan(&auction.ID)
	if err != nil {
		return fmt.Errorf("オークションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのオークションを取得する。見つからない場合はnilを返す。
func (r *PostgresAuctionRepo) FindByID(ctx context.Context, id int64) (*model.Auction, error) {
	auction := &model.Auction{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, base_price,
		        start_time, end_time, status, created_at, updated_at
		 FROM auctions WHERE id = $1`,
		id,
	).Scan(
		&auction.ID, &auction.OwnerID, &auction.Title, &auction.Description,
		&auction.BasePrice, &auction.StartTime, &auction.EndTime,
		&auction.Status, &auction.CreatedAt, &auction.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("オークションの取得に失敗しました: %w", err)
	}

	return auction, nil
}

// List はオークション一覧を終了時刻の昇順で返す。
func (r *PostgresAuctionRepo) List(ctx context.Context, onlyActive bool, limit int) ([]*model.Auction, error) {
	query := `SELECT id, owner_id, title, description, base_price,
	                 start_time, end_time, status, created_at, updated_at
	          FROM auctions`
	if onlyActive {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY end_time ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("オークション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanAuctions(rows)
}

// SnapshotByID は入札検証に必要なオークションの断面を取得する。
// 現在の最高入札額を同一クエリで取得する。見つからない場合はnilを返す。
func (r *PostgresAuctionRepo) SnapshotByID(ctx context.Context, id int64) (*model.AuctionSnapshot, error) {
	snap := &model.AuctionSnapshot{}
	err := r.db.QueryRowContext(ctx,
		`SELECT a.id, a.base_price, a.end_time, a.status,
		        COALESCE((SELECT MAX(b.amount) FROM bids b WHERE b.auction_id = a.id), 0)
		 FROM auctions a WHERE a.id = $1`,
		id,
	).Scan(&snap.ID, &snap.BasePrice, &snap.EndTime, &snap.Status, &snap.HighestBid)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("オークション断面の取得に失敗しました: %w", err)
	}

	return snap, nil
}

// ListDueForClose は終了時刻を過ぎたactiveなオークションを返す。
func (r *PostgresAuctionRepo) ListDueForClose(ctx context.Context, now time.Time) ([]*model.Auction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, base_price,
		        start_time, end_time, status, created_at, updated_at
		 FROM auctions
		 WHERE status = 'active' AND end_time <= $1
		 ORDER BY end_time ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("終了対象オークションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanAuctions(rows)
}

// CloseIfActive はstatusをactiveからendedへ条件付きで遷移させる。
// WHERE status = 'active' が多重スイープ間の唯一の排他点であり、
// 更新が0行なら別の実行が先に閉じている。
func (r *PostgresAuctionRepo) CloseIfActive(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = 'ended', updated_at = $2
		 WHERE id = $1 AND status = 'active'`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("オークションの終了遷移に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("終了遷移の更新件数の取得に失敗しました: %w", err)
	}

	return affected == 1, nil
}

// scanAuctions は結果セットからオークションのスライスを読み取る。
func scanAuctions(rows *sql.Rows) ([]*model.Auction, error) {
	var auctions []*model.Auction
	for rows.Next() {
		auction := &model.Auction{}
		if err := rows.Scan(
			&auction.ID, &auction.OwnerID, &auction.Title, &auction.Description,
			&auction.BasePrice, &auction.StartTime, &auction.EndTime,
			&auction.Status, &auction.CreatedAt, &auction.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("オークション行の読み取りに失敗しました: %w", err)
		}
		auctions = append(auctions, auction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("オークション行の走査に失敗しました: %w", err)
	}

	return auctions, nil
}

// compile-time interface check
var _ AuctionRepository = (*PostgresAuctionRepo)(nil)
