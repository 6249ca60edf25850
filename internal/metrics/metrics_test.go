package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordBidAccepted_IncrementsCounter は入札受理カウンタが増加することを検証する。
func TestRecordBidAccepted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBidAccepted()
	c.RecordBidAccepted()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "auctiond_bids_accepted_total" {
			found = true
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(mf.GetMetric()))
			}
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("bids_accepted_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("auctiond_bids_accepted_total metric not found")
	}
}

// TestRecordBidRejected_IncrementsCounterWithLabel は入札拒否カウンタが理由ラベル付きで増加することを検証する。
func TestRecordBidRejected_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBidRejected("BID_TOO_LOW")
	c.RecordBidRejected("BID_TOO_LOW")
	c.RecordBidRejected("AUCTION_CLOSED")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "auctiond_bids_rejected_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "BID_TOO_LOW":
					if val != 2 {
						t.Errorf("bids_rejected_total{reason=BID_TOO_LOW} = %v, want 2", val)
					}
				case "AUCTION_CLOSED":
					if val != 1 {
						t.Errorf("bids_rejected_total{reason=AUCTION_CLOSED} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("auctiond_bids_rejected_total metric not found")
	}
}

// TestRecordBidLatency_ObservesHistogram は入札レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordBidLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBidLatency(100 * time.Millisecond)
	c.RecordBidLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "auctiond_bid_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("auctiond_bid_latency_seconds metric not found")
	}
}

// TestRecordNotificationCreated_IncrementsCounterWithLabel は通知作成カウンタがカテゴリラベル付きで増加することを検証する。
func TestRecordNotificationCreated_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNotificationCreated("winner")
	c.RecordNotificationCreated("loser")
	c.RecordNotificationCreated("loser")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "auctiond_notifications_created_total" {
			found = true
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "winner":
					if val != 1 {
						t.Errorf("notifications_created_total{category=winner} = %v, want 1", val)
					}
				case "loser":
					if val != 2 {
						t.Errorf("notifications_created_total{category=loser} = %v, want 2", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("auctiond_notifications_created_total metric not found")
	}
}

// TestRecordLiveConnections_GaugeTracksConnectAndDisconnect は接続数ゲージが増減することを検証する。
func TestRecordLiveConnections_GaugeTracksConnectAndDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLiveConnected()
	c.RecordLiveConnected()
	c.RecordLiveConnected()
	c.RecordLiveDisconnected()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "auctiond_live_connections" {
			found = true
			val := mf.GetMetric()[0].GetGauge().GetValue()
			if val != 2 {
				t.Errorf("live_connections = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("auctiond_live_connections metric not found")
	}
}

// TestRecordSweepCycle_ObservesHistogram はスイープサイクルのヒストグラムに値が記録されることを検証する。
func TestRecordSweepCycle_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSweepCycle(50 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "auctiond_sweep_cycle_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 1 {
				t.Errorf("sample_count = %d, want 1", h.GetSampleCount())
			}
		}
	}
	if !found {
		t.Error("auctiond_sweep_cycle_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordBidAccepted()
	c.RecordBidRejected("BID_TOO_LOW")
	c.RecordAuctionClosed()
	c.RecordBidLatency(500 * time.Millisecond)
	c.RecordBroadcast("updateHighest")

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"auctiond_bids_accepted_total",
		"auctiond_bids_rejected_total",
		"auctiond_auctions_closed_total",
		"auctiond_bid_latency_seconds",
		"auctiond_broadcasts_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordBidAccepted()
	c2.RecordBidAccepted()
	c2.RecordBidAccepted()

	metrics1, _ := reg1.Gather()
	metrics2, _ := reg2.Gather()

	var val1, val2 float64
	for _, mf := range metrics1 {
		if mf.GetName() == "auctiond_bids_accepted_total" {
			val1 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	for _, mf := range metrics2 {
		if mf.GetName() == "auctiond_bids_accepted_total" {
			val2 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	if val1 != 1 {
		t.Errorf("reg1 bids_accepted = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 bids_accepted = %v, want 2", val2)
	}
}
