package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/auctiond/internal/model"
)

const (
	// writeWait は1回の書き込みの許容時間。
	writeWait = 10 * time.Second
	// pongWait はpong応答を待つ時間。これを超えた接続は切断する。
	pongWait = 60 * time.Second
	// pingPeriod はping送信間隔。pongWaitより短くなければならない。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize は受信メッセージの最大サイズ（バイト）。
	maxMessageSize = 1024
	// sendBufferSize は送信チャンネルのバッファサイズ。
	// バッファが溢れたクライアントは遅延クライアントとして切断される。
	sendBufferSize = 64
)

// Client はライブチャンネルの1接続を表す。
// identityがnilの接続はオブザーバー（公開イベントのみ受信、入札不可）。
type Client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	identity *model.Identity
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

// newClient はClientを生成する。
func newClient(conn *websocket.Conn, identity *model.Identity) *Client {
	return &Client{
		id:       uuid.New(),
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
	}
}

// enqueue は送信キューへメッセージを積む。
// 既に閉じた接続へは何もしない。バッファが満杯の場合はfalseを返し、
// 呼び出し側（Hub）が遅延クライアントとして切断する。
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close は送信チャンネルを1回だけ閉じる。
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// writePump は送信キューのメッセージをWebSocketへ書き込む。
// 接続ごとに1つのgoroutineで実行し、定期的にpingを送って生存確認する。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hubがこの接続を閉じた
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
