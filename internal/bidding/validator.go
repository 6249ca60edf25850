// Package bidding は入札の検証と受理（BidValidator / BidAcceptor）を提供する。
// 入札の妥当性判定とその原子的な永続化がこのパッケージの責務であり、
// bidsテーブルへの書き込みは必ずここを経由する。
package bidding

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/model"
)

// Validate は入札の受理可否を判定する純粋な決定関数。
// 判定順序は固定:
//  1. オークション不在 → AUCTION_NOT_FOUND
//  2. status = ended または now >= end_time → AUCTION_CLOSED
//  3. 入札額が正でない → INVALID_AMOUNT
//  4. 入札額 <= max(base_price, 現在最高額) → BID_TOO_LOW
//
// 受理の場合はnilを返す。比較はすべて厳密な不等号で、閾値と同額の入札は拒否する。
// nowはsnapshotのend_timeと同一の時刻基準（UTC）でなければならない。
func Validate(auctionID int64, snap *model.AuctionSnapshot, amount decimal.Decimal, now time.Time) *model.APIError {
	if snap == nil {
		return model.NewAuctionNotFoundError(auctionID)
	}

	if snap.Status == model.AuctionStatusEnded || !now.Before(snap.EndTime) {
		return model.NewAuctionClosedError(snap.ID)
	}

	if amount.Sign() <= 0 {
		return model.NewInvalidAmountError()
	}

	threshold := snap.Threshold()
	if amount.LessThanOrEqual(threshold) {
		return model.NewBidTooLowError(threshold)
	}

	return nil
}
