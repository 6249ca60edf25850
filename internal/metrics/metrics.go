// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 入札サービス・終了ワーカー・ライブチャンネルの各レコーダーを兼ねる。
type Collector struct {
	bidsAccepted         prometheus.Counter
	bidsRejected         *prometheus.CounterVec
	bidLatency           prometheus.Histogram
	sweepCycles          prometheus.Histogram
	auctionsClosed       prometheus.Counter
	notificationsCreated *prometheus.CounterVec
	liveConnections      prometheus.Gauge
	broadcasts           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auctiond_bids_accepted_total",
			Help: "受理された入札の合計数",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctiond_bids_rejected_total",
			Help: "拒否理由別の入札拒否数",
		}, []string{"reason"}),
		bidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auctiond_bid_latency_seconds",
			Help:    "入札処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sweepCycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auctiond_sweep_cycle_seconds",
			Help:    "終了スイープ1サイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		auctionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auctiond_auctions_closed_total",
			Help: "終了処理されたオークションの合計数",
		}),
		notificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctiond_notifications_created_total",
			Help: "カテゴリ別の通知作成数",
		}, []string{"category"}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auctiond_live_connections",
			Help: "現在のライブチャンネル接続数",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctiond_broadcasts_total",
			Help: "イベント種別ごとのブロードキャスト数",
		}, []string{"event"}),
	}

	reg.MustRegister(
		c.bidsAccepted,
		c.bidsRejected,
		c.bidLatency,
		c.sweepCycles,
		c.auctionsClosed,
		c.notificationsCreated,
		c.liveConnections,
		c.broadcasts,
	)

	return c
}

// RecordBidAccepted は入札受理を記録する。
func (c *Collector) RecordBidAccepted() {
	c.bidsAccepted.Inc()
}

// RecordBidRejected は入札拒否を拒否理由付きで記録する。
func (c *Collector) RecordBidRejected(reason string) {
	c.bidsRejected.WithLabelValues(reason).Inc()
}

// RecordBidLatency は入札処理のレイテンシを記録する。
func (c *Collector) RecordBidLatency(d time.Duration) {
	c.bidLatency.Observe(d.Seconds())
}

// RecordSweepCycle はスイープ1サイクルの所要時間を記録する。
func (c *Collector) RecordSweepCycle(d time.Duration) {
	c.sweepCycles.Observe(d.Seconds())
}

// RecordAuctionClosed はオークション終了を記録する。
func (c *Collector) RecordAuctionClosed() {
	c.auctionsClosed.Inc()
}

// RecordNotificationCreated は通知作成をカテゴリ付きで記録する。
func (c *Collector) RecordNotificationCreated(category string) {
	c.notificationsCreated.WithLabelValues(category).Inc()
}

// RecordLiveConnected はライブチャンネルへの接続を記録する。
func (c *Collector) RecordLiveConnected() {
	c.liveConnections.Inc()
}

// RecordLiveDisconnected はライブチャンネルからの切断を記録する。
func (c *Collector) RecordLiveDisconnected() {
	c.liveConnections.Dec()
}

// RecordBroadcast はブロードキャスト配信をイベント種別付きで記録する。
func (c *Collector) RecordBroadcast(event string) {
	c.broadcasts.WithLabelValues(event).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
