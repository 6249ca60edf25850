package live

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/auctiond/internal/model"
)

// mockMetrics はテスト用のMetricsRecorder実装。
type mockMetrics struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	broadcasts   []string
}

func (m *mockMetrics) RecordLiveConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected++
}

func (m *mockMetrics) RecordLiveDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected++
}

func (m *mockMetrics) RecordBroadcast(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, event)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func identityOf(userID int64, username string) *model.Identity {
	return &model.Identity{UserID: userID, Username: username}
}

// receiveEvent は送信キューからイベントを1件取り出してデコードする。
func receiveEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHub_JoinAndLeave(t *testing.T) {
	metrics := &mockMetrics{}
	hub := NewHub(testLogger(), metrics)

	c1 := newClient(nil, identityOf(1, "alice"))
	c2 := newClient(nil, nil) // オブザーバー

	hub.Join(c1)
	hub.Join(c2)

	if got := hub.ConnectionCount(); got != 2 {
		t.Errorf("ConnectionCount = %d, want 2", got)
	}

	hub.Leave(c1)
	if got := hub.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount after leave = %d, want 1", got)
	}

	// 二重Leaveは無視される
	hub.Leave(c1)
	if got := hub.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount after double leave = %d, want 1", got)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.connected != 2 {
		t.Errorf("connected = %d, want 2", metrics.connected)
	}
	if metrics.disconnected != 1 {
		t.Errorf("disconnected = %d, want 1", metrics.disconnected)
	}
}

// TestHub_Broadcast_ReachesAllClients は公開イベントがオブザーバーを含む
// 全接続に届くことを検証する。
func TestHub_Broadcast_ReachesAllClients(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	authed := newClient(nil, identityOf(1, "alice"))
	observer := newClient(nil, nil)
	hub.Join(authed)
	hub.Join(observer)

	hub.Broadcast("updateHighest", map[string]any{"auction_id": 7})

	for _, c := range []*Client{authed, observer} {
		ev := receiveEvent(t, c)
		if ev.Event != "updateHighest" {
			t.Errorf("event = %q, want updateHighest", ev.Event)
		}
	}
}

// TestHub_BroadcastToUser_TargetsOnlyThatUser はユーザー宛イベントが
// 該当ユーザーの全接続にのみ届くことを検証する。
func TestHub_BroadcastToUser_TargetsOnlyThatUser(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	// aliceは2接続（複数タブ）、bobは1接続、オブザーバーが1接続
	alice1 := newClient(nil, identityOf(1, "alice"))
	alice2 := newClient(nil, identityOf(1, "alice"))
	bob := newClient(nil, identityOf(2, "bob"))
	observer := newClient(nil, nil)
	for _, c := range []*Client{alice1, alice2, bob, observer} {
		hub.Join(c)
	}

	hub.BroadcastToUser(1, "notification", map[string]any{"message": "高値更新されました"})

	for _, c := range []*Client{alice1, alice2} {
		ev := receiveEvent(t, c)
		if ev.Event != "notification" {
			t.Errorf("event = %q, want notification", ev.Event)
		}
	}

	for _, c := range []*Client{bob, observer} {
		select {
		case <-c.send:
			t.Error("event should not reach other users")
		default:
		}
	}
}

// TestHub_BroadcastToUser_NoConnections は接続のないユーザー宛の配信が
// 何もせず完了することを検証する（再送なし）。
func TestHub_BroadcastToUser_NoConnections(t *testing.T) {
	metrics := &mockMetrics{}
	hub := NewHub(testLogger(), metrics)

	hub.BroadcastToUser(99, "notification", map[string]any{"message": "test"})

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.broadcasts) != 0 {
		t.Errorf("broadcasts = %v, want none", metrics.broadcasts)
	}
}

// newTestConn はテスト用の実WebSocket接続を作る。
// 遅延クライアント切断はconn.Close()を呼ぶため実接続が必要になる。
func newTestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				c.Close()
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestHub_SlowClient_IsDropped は送信キューが溢れたクライアントが
// 切断・除去されることを検証する。
func TestHub_SlowClient_IsDropped(t *testing.T) {
	hub := NewHub(testLogger(), nil)

	slow := newClient(newTestConn(t), identityOf(1, "alice"))
	hub.Join(slow)

	// writePumpを起動しないままバッファを埋め尽くす
	for i := 0; i < sendBufferSize+1; i++ {
		hub.Broadcast("updateHighest", map[string]any{"seq": i})
	}

	if got := hub.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d, want 0 (slow client dropped)", got)
	}
}
