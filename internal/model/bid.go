// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid はオークションへの1件の入札を表す。
// BidAcceptor経由でのみ作成され、作成後は不変。削除もされない。
type Bid struct {
	ID        int64
	AuctionID int64
	UserID    int64
	Amount    decimal.Decimal
	BidTime   time.Time
}

// BidWithBidder は入札と入札者の表示名を結合した読み取り用構造体。
// オークション詳細の入札履歴で使用する。
type BidWithBidder struct {
	Bid
	BidderName string
}

// UserBidSummary はユーザーのオークションごとの最高入札サマリを表す。
type UserBidSummary struct {
	AuctionID     int64
	AuctionTitle  string
	EndTime       time.Time
	Status        AuctionStatus
	BestAmount    decimal.Decimal
	HighestAmount decimal.Decimal // オークション全体の現在最高額
	IsLeading     bool
}
