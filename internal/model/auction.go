// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus はオークションのライフサイクル状態を表す。
// active → ended の一方向にのみ遷移し、決して巻き戻らない。
type AuctionStatus string

const (
	// AuctionStatusActive は入札受付中の状態。
	AuctionStatusActive AuctionStatus = "active"
	// AuctionStatusEnded は終了済みの状態。以降の入札は受け付けない。
	AuctionStatusEnded AuctionStatus = "ended"
)

// Auction は出品されたオークションを表す。
// 時刻フィールドはすべてUTCで保持・比較する。
type Auction struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	BasePrice   decimal.Decimal
	StartTime   time.Time
	EndTime     time.Time
	Status      AuctionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsEnded はオークションが指定時刻の時点で終了しているかを返す。
// status = ended、または終了時刻を過ぎている場合にtrueを返す。
func (a *Auction) IsEnded(now time.Time) bool {
	return a.Status == AuctionStatusEnded || !now.Before(a.EndTime)
}

// AuctionSnapshot は入札検証に必要なオークションの断面を表す。
// BidValidatorへの入力として使用する。
type AuctionSnapshot struct {
	ID         int64
	BasePrice  decimal.Decimal
	EndTime    time.Time
	Status     AuctionStatus
	HighestBid decimal.Decimal // 既存入札がない場合はゼロ
}

// Threshold は新規入札が厳密に上回るべき金額を返す。
// max(base_price, 現在の最高入札額)。
func (s *AuctionSnapshot) Threshold() decimal.Decimal {
	if s.HighestBid.GreaterThan(s.BasePrice) {
		return s.HighestBid
	}
	return s.BasePrice
}
