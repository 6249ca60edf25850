// Package auction はオークションの出品・照会のドメインロジックを提供する。
// 終了判定と勝者決定はworker/sweepの責務であり、このパッケージは行わない。
package auction

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/clock"
	"github.com/hitoshi/auctiond/internal/model"
	"github.com/hitoshi/auctiond/internal/repository"
	"github.com/hitoshi/auctiond/internal/security"
)

// defaultListLimit はオークション一覧の最大取得件数。
const defaultListLimit = 100

// Detail はオークション詳細と入札履歴（金額降順）を表す。
type Detail struct {
	Auction *model.Auction
	Bids    []model.BidWithBidder
	// EffectiveStatus はClock基準で計算した表示用ステータス。
	// スイープ遅延中（end_time経過済みだがstatusは未遷移）はendedとして扱う。
	EffectiveStatus model.AuctionStatus
}

// CreateInput はオークション作成の入力を表す。
// 時刻はハンドラー側でUTCに正規化済みであること。
type CreateInput struct {
	OwnerID     int64
	Title       string
	Description string
	BasePrice   decimal.Decimal
	StartTime   time.Time
	EndTime     time.Time
}

// Service はオークション管理のサービス層。
type Service struct {
	auctionRepo repository.AuctionRepository
	bidRepo     repository.BidRepository
	sanitizer   security.ContentSanitizerService
	clock       clock.Clock
}

// NewService はServiceを生成する。
func NewService(
	auctionRepo repository.AuctionRepository,
	bidRepo repository.BidRepository,
	sanitizer security.ContentSanitizerService,
	clk clock.Clock,
) *Service {
	return &Service{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		sanitizer:   sanitizer,
		clock:       clk,
	}
}

// Create は新規オークションを作成する。
// タイトル・説明文は保存前にサニタイズし、期間と開始価格を検証する。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Auction, error) {
	now := s.clock.Now()

	title := s.sanitizer.SanitizeTitle(input.Title)
	if title == "" {
		return nil, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "タイトルを入力してください。",
			Category: "validation",
			Action:   "タイトルは空にできません。",
		}
	}

	if input.BasePrice.Sign() <= 0 {
		return nil, model.NewInvalidAmountError()
	}

	startTime := input.StartTime.UTC()
	endTime := input.EndTime.UTC()
	if startTime.IsZero() {
		startTime = now
	}
	if !endTime.After(startTime) {
		return nil, model.NewInvalidAuctionTimesError("終了時刻が開始時刻より前です")
	}
	if !endTime.After(now) {
		return nil, model.NewInvalidAuctionTimesError("終了時刻が過去です")
	}

	auction := &model.Auction{
		OwnerID:     input.OwnerID,
		Title:       title,
		Description: s.sanitizer.SanitizeDescription(input.Description),
		BasePrice:   input.BasePrice,
		StartTime:   startTime,
		EndTime:     endTime,
		Status:      model.AuctionStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.auctionRepo.Create(ctx, auction); err != nil {
		return nil, err
	}

	slog.Info("auction created",
		slog.Int64("auction_id", auction.ID),
		slog.Int64("owner_id", auction.OwnerID),
		slog.Time("end_time", auction.EndTime),
	)

	return auction, nil
}

// GetDetail はオークション詳細と入札履歴を返す。
func (s *Service) GetDetail(ctx context.Context, auctionID int64) (*Detail, error) {
	auction, err := s.auctionRepo.FindByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, model.NewAuctionNotFoundError(auctionID)
	}

	bids, err := s.bidRepo.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	status := model.AuctionStatusActive
	if auction.IsEnded(s.clock.Now()) {
		status = model.AuctionStatusEnded
	}

	return &Detail{
		Auction:         auction,
		Bids:            bids,
		EffectiveStatus: status,
	}, nil
}

// List はオークション一覧を終了時刻の昇順で返す。
func (s *Service) List(ctx context.Context, onlyActive bool) ([]*model.Auction, error) {
	return s.auctionRepo.List(ctx, onlyActive, defaultListLimit)
}

// MyBids はユーザーのオークションごとの最高入札サマリを返す。
// ステータスはClock基準で計算し直す（end_time経過済みならended）。
func (s *Service) MyBids(ctx context.Context, userID int64) ([]model.UserBidSummary, error) {
	summaries, err := s.bidRepo.ListUserBestBids(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range summaries {
		if summaries[i].Status == model.AuctionStatusActive && !now.Before(summaries[i].EndTime) {
			summaries[i].Status = model.AuctionStatusEnded
		}
	}

	return summaries, nil
}
