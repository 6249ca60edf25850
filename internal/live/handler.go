package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/bidding"
	"github.com/hitoshi/auctiond/internal/model"
)

// アクション名とイベント名
const (
	actionPlaceBid   = "placeBid"
	eventBidRejected = "bidRejected"
)

// placeBidTimeout はライブチャンネル経由の入札1件の処理期限。
const placeBidTimeout = 10 * time.Second

// TokenVerifier は署名付きトークンの検証インターフェース。
// auth.TokenServiceの部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenString string) (*model.Identity, error)
}

// BidPlacer は入札受理のインターフェース。
// bidding.Serviceの部分集合として定義する。
type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID int64, bidder model.Identity, amount decimal.Decimal) (*bidding.PlaceBidResult, error)
}

// inboundMessage はクライアントから受信するメッセージ。
type inboundMessage struct {
	Action    string          `json:"action"`
	AuctionID int64           `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// bidRejectedPayload は入札拒否イベントのペイロード。
// 拒否理由と、上回るべき閾値を含む人間可読なメッセージを返す。
type bidRejectedPayload struct {
	AuctionID int64  `json:"auction_id"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

// Handler はライブチャンネルへの接続受付を行うHTTPハンドラー。
// 有効なトークンを持つ接続はユーザー別トピックに参加し入札を送信できる。
// トークンなしの接続はオブザーバーとして公開イベントのみ受信する。
// 無効・期限切れのトークンは接続自体を拒否する。
type Handler struct {
	hub      *Hub
	bids     BidPlacer
	verifier TokenVerifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler はHandlerを生成する。
// allowedOriginはCORSと同じオリジン制約をWebSocketハンドシェイクに適用する。
func NewHandler(hub *Hub, bids BidPlacer, verifier TokenVerifier, logger *slog.Logger, allowedOrigin string) *Handler {
	return &Handler{
		hub:      hub,
		bids:     bids,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// ServeHTTP はWebSocket接続を受け付ける。
// GET /ws?token=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.admit(r)
	if err != nil {
		// 無効なトークンは黙って通さず、明確なエラーで接続試行を終了させる
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			http.Error(w, apiErr.Message, http.StatusUnauthorized)
		} else {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}

	client := newClient(conn, identity)
	h.hub.Join(client)

	go client.writePump()
	go h.readPump(client)
}

// admit は接続のトークンを検証する。
// トークンが提示されない場合は (nil, nil) でオブザーバーとして許可する。
func (h *Handler) admit(r *http.Request) (*model.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			token = strings.TrimPrefix(bearer, "Bearer ")
		}
	}
	if token == "" {
		return nil, nil
	}
	return h.verifier.Verify(token)
}

// readPump はクライアントからの受信メッセージを処理する。
// 接続ごとに1つのgoroutineで実行し、終了時にレジストリから離脱する。
func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("live client read error",
					slog.String("connection_id", c.id.String()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, 0, model.ErrCodeInvalidRequest, "メッセージの解析に失敗しました。")
			continue
		}

		switch msg.Action {
		case actionPlaceBid:
			h.handlePlaceBid(c, msg)
		default:
			h.sendError(c, 0, model.ErrCodeInvalidRequest, "未対応のアクションです: "+msg.Action)
		}
	}
}

// handlePlaceBid はライブチャンネル経由の入札を処理する。
// 受理された場合の配信はbidding.Serviceが全購読者へ行うため、
// ここでは拒否の返送のみを担当する。
func (h *Handler) handlePlaceBid(c *Client, msg inboundMessage) {
	if c.identity == nil {
		h.sendError(c, msg.AuctionID, model.ErrCodeUnauthorized, "オブザーバー接続からは入札できません。")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), placeBidTimeout)
	defer cancel()

	_, err := h.bids.PlaceBid(ctx, msg.AuctionID, *c.identity, msg.Amount)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			h.sendError(c, msg.AuctionID, apiErr.Code, apiErr.Message)
			return
		}

		h.logger.Error("live bid failed",
			slog.Int64("auction_id", msg.AuctionID),
			slog.Int64("user_id", c.identity.UserID),
			slog.String("error", err.Error()),
		)
		h.sendError(c, msg.AuctionID, "INTERNAL_ERROR", "内部エラーが発生しました。")
	}
}

// sendError は拒否イベントを当該接続のみに返送する。
func (h *Handler) sendError(c *Client, auctionID int64, code, reason string) {
	data, err := json.Marshal(Event{
		Event: eventBidRejected,
		Payload: bidRejectedPayload{
			AuctionID: auctionID,
			Code:      code,
			Reason:    reason,
		},
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
