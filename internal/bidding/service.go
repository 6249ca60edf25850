package bidding

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

// EventUpdateHighest は最高額更新のライブチャンネルイベント名。
const EventUpdateHighest = "updateHighest"

// UpdateHighestPayload は最高額更新イベントのペイロード。
// 入札者本人だけでなく全購読者に配信される。
type UpdateHighestPayload struct {
	AuctionID     int64           `json:"auction_id"`
	HighestAmount decimal.Decimal `json:"highest_amount"`
	HighestBidder string          `json:"highest_bidder"`
}

// Broadcaster はライブチャンネルへの配信インターフェース。
// 接続レジストリをグローバル状態ではなく注入された能力として扱う。
type Broadcaster interface {
	// Broadcast は全購読者へイベントを配信する。
	Broadcast(event string, payload any)
	// BroadcastToUser は指定ユーザーの接続のみにイベントを配信する。
	BroadcastToUser(userID int64, event string, payload any)
}

// MetricsRecorder は入札処理のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordBidAccepted()
	RecordBidRejected(reason string)
	RecordBidLatency(d time.Duration)
}

// PlaceBidResult は入札受理の結果を表す。
type PlaceBidResult struct {
	Bid           *model.Bid
	HighestAmount decimal.Decimal
	HighestBidder string
}

// Service は入札の検証・受理・配信を束ねるBidAcceptor実装。
type Service struct {
	auctionRepo repository.AuctionRepository
	bidRepo     repository.BidRepository
	notifRepo   repository.NotificationRepository
	broadcaster Broadcaster
	metrics     MetricsRecorder
	clock       clock.Clock
}

// NewService はServiceを生成する。
func NewService(
	auctionRepo repository.AuctionRepository,
	bidRepo repository.BidRepository,
	notifRepo repository.NotificationRepository,
	broadcaster Broadcaster,
	metrics MetricsRecorder,
	clk clock.Clock,
) *Service {
	return &Service{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		notifRepo:   notifRepo,
		broadcaster: broadcaster,
		metrics:     metrics,
		clock:       clk,
	}
}

// placeBidMaxAttempts は並行入札と競合した場合の再判定回数。
// 2回目の判定は必ず新しい断面に対して行われるため、それ以上の反復は不要。
const placeBidMaxAttempts = 2

// PlaceBid は入札を検証し、受理できる場合は原子的に記録して配信する。
//
// 検証は2段階で行う。まず断面に対する純粋検証で具体的な拒否理由を確定し、
// 通過した場合のみ条件付きINSERT（検証述語を再表現した単一文）を実行する。
// INSERTが0行なら断面読み取り後に別の入札が割り込んでいるので、
// 新しい断面で再判定する。拒否時に部分的な書き込みは発生しない。
func (s *Service) PlaceBid(ctx context.Context, auctionID int64, bidder model.Identity, amount decimal.Decimal) (*PlaceBidResult, error) {
	start := time.Now()

	var lastThreshold decimal.Decimal

	for attempt := 0; attempt < placeBidMaxAttempts; attempt++ {
		now := s.clock.Now()

		snap, err := s.auctionRepo.SnapshotByID(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		if apiErr := Validate(auctionID, snap, amount, now); apiErr != nil {
			s.recordRejection(apiErr)
			return nil, apiErr
		}
		lastThreshold = snap.Threshold()

		// 割り込まれた入札者への通知用に、挿入前の最高入札者を控えておく
		previous, err := s.bidRepo.HighestBid(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		bid, err := s.bidRepo.InsertIfLeading(ctx, auctionID, bidder.UserID, amount, now)
		if err != nil {
			return nil, err
		}
		if bid == nil {
			// 検証通過後に別の入札が先着した。新しい断面で再判定する。
			continue
		}

		s.afterAccept(ctx, bid, bidder, previous)

		if s.metrics != nil {
			s.metrics.RecordBidAccepted()
			s.metrics.RecordBidLatency(time.Since(start))
		}

		return &PlaceBidResult{
			Bid:           bid,
			HighestAmount: bid.Amount,
			HighestBidder: bidder.Username,
		}, nil
	}

	// 再判定でも挿入できなかった。直近の断面に基づく閾値で拒否を返す。
	apiErr := model.NewBidTooLowError(lastThreshold)
	s.recordRejection(apiErr)
	return nil, apiErr
}

// afterAccept は受理済み入札の波及処理を行う。
// 配信と通知は受理確定後のベストエフォートであり、失敗しても入札は巻き戻さない。
func (s *Service) afterAccept(ctx context.Context, bid *model.Bid, bidder model.Identity, previous *model.BidWithBidder) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventUpdateHighest, UpdateHighestPayload{
			AuctionID:     bid.AuctionID,
			HighestAmount: bid.Amount,
			HighestBidder: bidder.Username,
		})
	}

	// 抜かれた前回の最高入札者に通知する
	if previous != nil && previous.UserID != bidder.UserID && s.notifRepo != nil {
		prevUserID := previous.UserID
		created, err := s.notifRepo.CreateUnique(ctx, &model.Notification{
			UserID:    &prevUserID,
			AuctionID: bid.AuctionID,
			Message:   fmt.Sprintf("あなたの入札が上回られました。現在の最高額: %s", bid.Amount.String()),
			Category:  model.NotificationCategoryOutbid,
			CreatedAt: bid.BidTime,
		})
		if err != nil {
			slog.Error("failed to create outbid notification",
				slog.Int64("auction_id", bid.AuctionID),
				slog.Int64("user_id", prevUserID),
				slog.String("error", err.Error()),
			)
		} else if created && s.broadcaster != nil {
			s.broadcaster.BroadcastToUser(prevUserID, "notification", UpdateHighestPayload{
				AuctionID:     bid.AuctionID,
				HighestAmount: bid.Amount,
				HighestBidder: bidder.Username,
			})
		}
	}

	slog.Info("bid accepted",
		slog.Int64("auction_id", bid.AuctionID),
		slog.Int64("bid_id", bid.ID),
		slog.Int64("user_id", bid.UserID),
		slog.String("amount", bid.Amount.String()),
	)
}

// recordRejection は拒否メトリクスを記録する。
func (s *Service) recordRejection(apiErr *model.APIError) {
	if s.metrics != nil {
		s.metrics.RecordBidRejected(apiErr.Code)
	}
}
