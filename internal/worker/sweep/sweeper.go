// Package sweep はオークションの終了処理（Resolver）を提供する。
// 終了時刻を過ぎたオークションを定期的に走査し、猶予ウィンドウを考慮して
// ちょうど1回だけ閉じ、勝者を決定して結果通知を発行する。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/clock"
	"github.com/hitoshi/auctiond/internal/model"
	"github.com/hitoshi/auctiond/internal/repository"
)

// EventAuctionEnded はオークション終了のライブチャンネルイベント名。
const EventAuctionEnded = "auctionEnded"

// AuctionEndedPayload はオークション終了イベントのペイロード。
// 入札ゼロで終了した場合、WinnerとAmountはnull。
type AuctionEndedPayload struct {
	AuctionID int64            `json:"auction_id"`
	Winner    *string          `json:"winner"`
	Amount    *decimal.Decimal `json:"amount"`
}

// Broadcaster はライブチャンネルへの配信インターフェース。
type Broadcaster interface {
	// Broadcast は全購読者へイベントを配信する。
	Broadcast(event string, payload any)
	// BroadcastToUser は指定ユーザーの接続のみにイベントを配信する。
	BroadcastToUser(userID int64, event string, payload any)
}

// MetricsRecorder はスイープ処理のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordSweepCycle(d time.Duration)
	RecordAuctionClosed()
	RecordNotificationCreated(category string)
}

// Sweeper はオークション終了処理の実行体。
// 1回の実行で終了期限を迎えた全オークションを処理する。
type Sweeper struct {
	auctionRepo repository.AuctionRepository
	bidRepo     repository.BidRepository
	notifRepo   repository.NotificationRepository
	broadcaster Broadcaster
	metrics     MetricsRecorder
	logger      *slog.Logger
	clock       clock.Clock
	graceWindow time.Duration
}

// NewSweeper はSweeperを生成する。
// graceWindowが0以下の場合はデフォルト値3秒を使用する。
func NewSweeper(
	auctionRepo repository.AuctionRepository,
	bidRepo repository.BidRepository,
	notifRepo repository.NotificationRepository,
	broadcaster Broadcaster,
	metrics MetricsRecorder,
	logger *slog.Logger,
	clk clock.Clock,
	graceWindow time.Duration,
) *Sweeper {
	if graceWindow <= 0 {
		graceWindow = 3 * time.Second
	}
	return &Sweeper{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		notifRepo:   notifRepo,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		clock:       clk,
		graceWindow: graceWindow,
	}
}

// RunOnce は終了期限を迎えたactiveなオークションを1回走査して処理する。
// 1件の処理失敗は残りの処理を中断しない。失敗したオークションはstatusが
// activeのまま残るため、次のサイクルで自然に再選択される。
func (s *Sweeper) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := s.clock.Now()

	due, err := s.auctionRepo.ListDueForClose(ctx, now)
	if err != nil {
		return fmt.Errorf("終了対象オークションの取得に失敗: %w", err)
	}

	for _, auction := range due {
		if err := s.resolve(ctx, auction, now); err != nil {
			s.logger.Error("オークションの終了処理に失敗しました",
				slog.Int64("auction_id", auction.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSweepCycle(time.Since(start))
	}

	if len(due) > 0 {
		s.logger.Info("スイープサイクルが完了しました",
			slog.Int("due_count", len(due)),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}

	return nil
}

// resolve は1件のオークションを終了させる。
// 状態遷移 active → ended はCloseIfActiveの条件付きUPDATEが唯一の排他点で、
// 0行更新なら別の実行が先に閉じているため以降の処理をスキップする。
func (s *Sweeper) resolve(ctx context.Context, auction *model.Auction, now time.Time) error {
	// 猶予判定: 最新の入札から猶予ウィンドウが経過するまで閉じない。
	// 対象は期限到来済みのオークションだけなので、新しい入札は必ず締切直前の
	// 駆け込みを意味する。その対抗入札が届く猶予として、このサイクルを
	// スキップして次のサイクルで再評価する。
	latest, err := s.bidRepo.LatestBidTime(ctx, auction.ID)
	if err != nil {
		return err
	}
	if latest != nil && now.Sub(*latest) < s.graceWindow {
		s.logger.Info("猶予ウィンドウ内の入札があるため終了を見送ります",
			slog.Int64("auction_id", auction.ID),
			slog.Time("latest_bid_time", *latest),
		)
		return nil
	}

	closed, err := s.auctionRepo.CloseIfActive(ctx, auction.ID, now)
	if err != nil {
		return err
	}
	if !closed {
		// 別のスイープ実行が先に閉じた。勝者計算も通知も行わない。
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordAuctionClosed()
	}

	winner, err := s.bidRepo.HighestBid(ctx, auction.ID)
	if err != nil {
		return err
	}

	if winner == nil {
		return s.finishWithoutBids(ctx, auction, now)
	}
	return s.finishWithWinner(ctx, auction, winner, now)
}

// finishWithoutBids は入札ゼロで終了したオークションの通知と配信を行う。
func (s *Sweeper) finishWithoutBids(ctx context.Context, auction *model.Auction, now time.Time) error {
	ownerID := auction.OwnerID
	s.createNotification(ctx, &model.Notification{
		UserID:    &ownerID,
		AuctionID: auction.ID,
		Message:   fmt.Sprintf("「%s」は入札がないまま終了しました。", auction.Title),
		Category:  model.NotificationCategoryNoBids,
		CreatedAt: now,
	})

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventAuctionEnded, AuctionEndedPayload{
			AuctionID: auction.ID,
			Winner:    nil,
			Amount:    nil,
		})
	}

	s.logger.Info("オークションを入札なしで終了しました",
		slog.Int64("auction_id", auction.ID),
	)

	return nil
}

// finishWithWinner は勝者が存在するオークションの通知と配信を行う。
// 勝者はHighestBidの順序（金額降順、同額は早い入札時刻）で一意に決まる。
func (s *Sweeper) finishWithWinner(ctx context.Context, auction *model.Auction, winner *model.BidWithBidder, now time.Time) error {
	winnerID := winner.UserID
	s.createNotification(ctx, &model.Notification{
		UserID:    &winnerID,
		AuctionID: auction.ID,
		Message:   fmt.Sprintf("「%s」を %s で落札しました。", auction.Title, winner.Amount.String()),
		Category:  model.NotificationCategoryWinner,
		CreatedAt: now,
	})

	bidderIDs, err := s.bidRepo.ListBidderIDs(ctx, auction.ID)
	if err != nil {
		return err
	}
	for _, bidderID := range bidderIDs {
		if bidderID == winner.UserID {
			continue
		}
		loserID := bidderID
		s.createNotification(ctx, &model.Notification{
			UserID:    &loserID,
			AuctionID: auction.ID,
			Message:   fmt.Sprintf("「%s」は %s で落札されました。", auction.Title, winner.Amount.String()),
			Category:  model.NotificationCategoryLoser,
			CreatedAt: now,
		})
	}

	if s.broadcaster != nil {
		winnerName := winner.BidderName
		amount := winner.Amount
		s.broadcaster.Broadcast(EventAuctionEnded, AuctionEndedPayload{
			AuctionID: auction.ID,
			Winner:    &winnerName,
			Amount:    &amount,
		})
	}

	s.logger.Info("オークションを終了しました",
		slog.Int64("auction_id", auction.ID),
		slog.Int64("winner_user_id", winner.UserID),
		slog.String("winning_amount", winner.Amount.String()),
	)

	return nil
}

// createNotification は通知を冪等に作成し、作成できた場合のみ対象ユーザーへ配信する。
// 既存の同一通知があればスキップされる（スイープ再実行で重複しない）。
// 通知の失敗は終了処理全体を失敗させない。
func (s *Sweeper) createNotification(ctx context.Context, n *model.Notification) {
	created, err := s.notifRepo.CreateUnique(ctx, n)
	if err != nil {
		s.logger.Error("通知の作成に失敗しました",
			slog.Int64("auction_id", n.AuctionID),
			slog.String("category", string(n.Category)),
			slog.String("error", err.Error()),
		)
		return
	}
	if !created {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordNotificationCreated(string(n.Category))
	}

	if s.broadcaster != nil && n.UserID != nil {
		s.broadcaster.BroadcastToUser(*n.UserID, "notification", map[string]any{
			"auction_id": n.AuctionID,
			"message":    n.Message,
			"category":   n.Category,
		})
	}
}
