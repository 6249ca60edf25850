// Package clock はシステム全体で単一の時刻基準（UTC）を提供する。
// オークション終了判定と入札時刻の記録は必ず同一のClockを経由し、
// ローカル時刻とUTCの混在による比較バグを構造的に防ぐ。
package clock

import "time"

// Clock は現在時刻の取得インターフェース。
// テストで固定時刻を注入できるようにするための抽象化。
type Clock interface {
	// Now は現在時刻をUTCで返す。
	Now() time.Time
}

// SystemClock はシステム時刻をUTCで返すClock実装。
type SystemClock struct{}

// Now は現在のシステム時刻をUTCで返す。
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock はテスト用の固定時刻Clock。
type FixedClock struct {
	Time time.Time
}

// Now は固定された時刻をUTCで返す。
func (c FixedClock) Now() time.Time {
	return c.Time.UTC()
}

// compile-time interface check
var (
	_ Clock = SystemClock{}
	_ Clock = FixedClock{}
)
