// Package live はWebSocketによるライブチャンネル（接続レジストリとファンアウト）を提供する。
// 配信はベストエフォートのat-most-onceで、切断中のクライアントへの再送は行わない。
// オフラインだったクライアントは永続化された通知を読み直して状態を合わせる。
package live

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event はライブチャンネルで配信されるメッセージの外形。
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// MetricsRecorder はライブチャンネルのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordLiveConnected()
	RecordLiveDisconnected()
	RecordBroadcast(event string)
}

// Hub は接続レジストリの実装。
// join/leave/broadcastを提供し、グローバルなソケット状態は持たない。
// BidAcceptorとResolverへは能力（Broadcasterインターフェース）として注入される。
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	byUser  map[int64]map[uuid.UUID]*Client

	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewHub はHubを生成する。
func NewHub(logger *slog.Logger, metrics MetricsRecorder) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		byUser:  make(map[int64]map[uuid.UUID]*Client),
		logger:  logger,
		metrics: metrics,
	}
}

// Join はクライアントをレジストリに登録する。
// 認証済みクライアントはユーザー別トピックにも参加する。
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	if c.identity != nil {
		conns, ok := h.byUser[c.identity.UserID]
		if !ok {
			conns = make(map[uuid.UUID]*Client)
			h.byUser[c.identity.UserID] = conns
		}
		conns[c.id] = c
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordLiveConnected()
	}

	h.logger.Info("live client joined",
		slog.String("connection_id", c.id.String()),
		slog.Bool("observer", c.identity == nil),
	)
}

// Leave はクライアントをレジストリから除去し、送信チャンネルを閉じる。
// 二重呼び出しは無視される。
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	if present {
		delete(h.clients, c.id)
		if c.identity != nil {
			conns := h.byUser[c.identity.UserID]
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.byUser, c.identity.UserID)
			}
		}
	}
	h.mu.Unlock()

	if !present {
		return
	}

	c.close()

	if h.metrics != nil {
		h.metrics.RecordLiveDisconnected()
	}

	h.logger.Info("live client left",
		slog.String("connection_id", c.id.String()),
	)
}

// Broadcast は接続中の全クライアントへイベントを配信する。
// オブザーバー接続にも届く公開イベント用。
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal live event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, data)

	if h.metrics != nil {
		h.metrics.RecordBroadcast(event)
	}
}

// BroadcastToUser は指定ユーザーの接続のみにイベントを配信する。
// ユーザー宛通知はオブザーバー接続には届かない。
func (h *Hub) BroadcastToUser(userID int64, event string, payload any) {
	data, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal live event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.RLock()
	conns := h.byUser[userID]
	targets := make([]*Client, 0, len(conns))
	for _, c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, data)

	if len(targets) > 0 && h.metrics != nil {
		h.metrics.RecordBroadcast(event)
	}
}

// deliver は各クライアントの送信キューへメッセージを積む。
// キューが溢れたクライアントは追随できない遅延接続として切断する。
// 再送はしない（at-most-once）。
func (h *Hub) deliver(targets []*Client, data []byte) {
	for _, c := range targets {
		if !c.enqueue(data) {
			h.logger.Warn("dropping slow live client",
				slog.String("connection_id", c.id.String()),
			)
			c.conn.Close()
			h.Leave(c)
		}
	}
}

// ConnectionCount は現在の接続数を返す。
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
