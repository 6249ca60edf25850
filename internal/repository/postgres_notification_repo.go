package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/auctiond/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// CreateUnique は通知を冪等に作成する。
// 結果カテゴリの一意インデックス（auction, user, category）への衝突は
// ON CONFLICT DO NOTHINGで吸収するため、スイープが同じ終了処理を繰り返しても
// 通知は増えない。outbidは一意インデックスの対象外で、高値を更新される
// たびに新しい行が挿入される。
func (r *PostgresNotificationRepo) CreateUnique(ctx context.Context, n *model.Notification) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, auction_id, message, category, is_read, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)
		 ON CONFLICT DO NOTHING`,
		nullInt64(n.UserID), n.AuctionID, n.Message, n.Category, n.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("通知の作成に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("通知作成の件数取得に失敗しました: %w", err)
	}

	return affected == 1, nil
}

// ListByUser はユーザー宛の通知を作成時刻の降順で返す。
func (r *PostgresNotificationRepo) ListByUser(ctx context.Context, userID int64) ([]*model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, auction_id, message, category, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		var uid sql.NullInt64
		if err := rows.Scan(&n.ID, &uid, &n.AuctionID, &n.Message, &n.Category, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("通知行の読み取りに失敗しました: %w", err)
		}
		if uid.Valid {
			v := uid.Int64
			n.UserID = &v
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知一覧の走査に失敗しました: %w", err)
	}

	return notifications, nil
}

// MarkRead は指定通知を既読にする。
// 通知が存在しないか他ユーザー宛の場合はfalseを返す。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, id, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("通知の既読化に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("既読化の件数取得に失敗しました: %w", err)
	}

	return affected == 1, nil
}

// MarkAllRead はユーザー宛の全未読通知を既読にし、更新件数を返す。
func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("通知の一括既読化に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("一括既読化の件数取得に失敗しました: %w", err)
	}

	return affected, nil
}

// Delete は指定通知を削除する。
// 通知が存在しないか他ユーザー宛の場合はfalseを返す。
func (r *PostgresNotificationRepo) Delete(ctx context.Context, id, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("通知の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("通知削除の件数取得に失敗しました: %w", err)
	}

	return affected == 1, nil
}

// DeleteRead はユーザー宛の既読通知をすべて削除し、削除件数を返す。
func (r *PostgresNotificationRepo) DeleteRead(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE user_id = $1 AND is_read = TRUE`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("既読通知の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("既読通知削除の件数取得に失敗しました: %w", err)
	}

	return affected, nil
}

// DeleteOlderThan は保持期間を超過した既読通知を削除し、削除件数を返す。
func (r *PostgresNotificationRepo) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = TRUE AND created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(retention.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("古い通知の削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("古い通知削除の件数取得に失敗しました: %w", err)
	}

	return affected, nil
}

// nullInt64 は*int64をsql.NullInt64に変換する。
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
