package sweep

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// SweepRunner はスイープ1回分の実行インターフェース。
type SweepRunner interface {
	// RunOnce は終了期限を迎えたオークションを1回走査して処理する。
	RunOnce(ctx context.Context) error
}

// Scheduler はスイープの定期実行を行う。
// 短い固定間隔のティッカーで駆動し、前回の実行が継続中の場合は
// そのサイクルをスキップする（実行が重ならないことを明示的に保証する）。
type Scheduler struct {
	sweeper  SweepRunner
	logger   *slog.Logger
	inFlight atomic.Bool
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(sweeper SweepRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する（ブロッキング）。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スイープスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runGuarded(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スイープスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runGuarded(ctx)
		}
	}
}

// runGuarded は実行中でない場合のみスイープを実行する。
// 条件付きcloseが冪等性を保証するため重複実行しても壊れはしないが、
// 同じオークション集合を二重に走査する無駄を避ける。
func (s *Scheduler) runGuarded(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("前回のスイープが継続中のためスキップします")
		return
	}
	defer s.inFlight.Store(false)

	if err := s.sweeper.RunOnce(ctx); err != nil {
		s.logger.Error("スイープサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
