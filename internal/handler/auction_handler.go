package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/auctiond/internal/auction"
	"github.com/hitoshi/auctiond/internal/bidding"
	"github.com/hitoshi/auctiond/internal/middleware"
	"github.com/hitoshi/auctiond/internal/model"
)

// AuctionServiceInterface はオークションハンドラーが必要とするサービスインターフェース。
type AuctionServiceInterface interface {
	// Create は新規オークションを作成する。
	Create(ctx context.Context, input auction.CreateInput) (*model.Auction, error)
	// GetDetail はオークション詳細と入札履歴を取得する。
	GetDetail(ctx context.Context, auctionID int64) (*auction.Detail, error)
	// List はオークション一覧を終了時刻の昇順で返す。
	List(ctx context.Context, onlyActive bool) ([]*model.Auction, error)
	// MyBids はユーザーのオークションごとの最高入札サマリを返す。
	MyBids(ctx context.Context, userID int64) ([]model.UserBidSummary, error)
}

// BidServiceInterface は入札受理のサービスインターフェース。
type BidServiceInterface interface {
	// PlaceBid は入札を検証し、受理できる場合は原子的に記録する。
	PlaceBid(ctx context.Context, auctionID int64, bidder model.Identity, amount decimal.Decimal) (*bidding.PlaceBidResult, error)
}

// AuctionHandler はオークション管理のHTTPハンドラー。
type AuctionHandler struct {
	service AuctionServiceInterface
	bids    BidServiceInterface
}

// NewAuctionHandler はAuctionHandlerを生成する。
func NewAuctionHandler(service AuctionServiceInterface, bids BidServiceInterface) *AuctionHandler {
	return &AuctionHandler{
		service: service,
		bids:    bids,
	}
}

// createAuctionRequest はオークション作成リクエストのボディ。
type createAuctionRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
}

// placeBidRequest は入札リクエストのボディ。
type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// auctionResponse はオークション情報のAPIレスポンス。
type auctionResponse struct {
	ID          int64           `json:"id"`
	OwnerID     int64           `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Status      string          `json:"status"`
}

// bidResponse は入札1件のAPIレスポンス。
type bidResponse struct {
	ID         int64           `json:"id"`
	AuctionID  int64           `json:"auction_id"`
	Amount     decimal.Decimal `json:"amount"`
	BidderName string          `json:"bidder_name,omitempty"`
	BidTime    time.Time       `json:"bid_time"`
}

// auctionDetailResponse はオークション詳細のAPIレスポンス。
type auctionDetailResponse struct {
	auctionResponse
	Bids []bidResponse `json:"bids"`
}

// placeBidResponse は入札受理のAPIレスポンス。
type placeBidResponse struct {
	Bid           bidResponse     `json:"bid"`
	HighestAmount decimal.Decimal `json:"highest_amount"`
	HighestBidder string          `json:"highest_bidder"`
}

// userBidSummaryResponse はユーザー入札サマリのAPIレスポンス。
type userBidSummaryResponse struct {
	AuctionID     int64           `json:"auction_id"`
	AuctionTitle  string          `json:"auction_title"`
	EndTime       time.Time       `json:"end_time"`
	Status        string          `json:"status"`
	BestAmount    decimal.Decimal `json:"best_amount"`
	HighestAmount decimal.Decimal `json:"highest_amount"`
	IsLeading     bool            `json:"is_leading"`
}

// CreateAuction はオークション出品を処理する。
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newBodyParseError())
		return
	}

	created, err := h.service.Create(r.Context(), auction.CreateInput{
		OwnerID:     identity.UserID,
		Title:       req.Title,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAuctionResponse(created))
}

// ListAuctions はオークション一覧を返す。
// GET /auctions?active=true
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	onlyActive := r.URL.Query().Get("active") == "true"

	auctions, err := h.service.List(r.Context(), onlyActive)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]auctionResponse, len(auctions))
	for i, a := range auctions {
		results[i] = toAuctionResponse(a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetAuction はオークション詳細と入札履歴を返す。
// GET /auctions/:id
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidIDError())
		return
	}

	detail, err := h.service.GetDetail(r.Context(), auctionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := auctionDetailResponse{
		auctionResponse: toAuctionResponse(detail.Auction),
		Bids:            make([]bidResponse, len(detail.Bids)),
	}
	// 表示用ステータスはClock基準の実効値で上書きする
	resp.Status = string(detail.EffectiveStatus)
	for i, b := range detail.Bids {
		resp.Bids[i] = bidResponse{
			ID:         b.ID,
			AuctionID:  b.AuctionID,
			Amount:     b.Amount,
			BidderName: b.BidderName,
			BidTime:    b.BidTime,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// PlaceBid は入札を処理する。
// POST /api/auctions/:id/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	auctionID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidIDError())
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newBodyParseError())
		return
	}

	result, err := h.bids.PlaceBid(r.Context(), auctionID, identity, req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(placeBidResponse{
		Bid: bidResponse{
			ID:        result.Bid.ID,
			AuctionID: result.Bid.AuctionID,
			Amount:    result.Bid.Amount,
			BidTime:   result.Bid.BidTime,
		},
		HighestAmount: result.HighestAmount,
		HighestBidder: result.HighestBidder,
	})
}

// MyBids は認証済みユーザーの入札サマリを返す。
// GET /api/me/bids
func (h *AuctionHandler) MyBids(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	summaries, err := h.service.MyBids(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]userBidSummaryResponse, len(summaries))
	for i, s := range summaries {
		results[i] = userBidSummaryResponse{
			AuctionID:     s.AuctionID,
			AuctionTitle:  s.AuctionTitle,
			EndTime:       s.EndTime,
			Status:        string(s.Status),
			BestAmount:    s.BestAmount,
			HighestAmount: s.HighestAmount,
			IsLeading:     s.IsLeading,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// toAuctionResponse はmodel.AuctionからAPIレスポンスに変換する。
func toAuctionResponse(a *model.Auction) auctionResponse {
	return auctionResponse{
		ID:          a.ID,
		OwnerID:     a.OwnerID,
		Title:       a.Title,
		Description: a.Description,
		BasePrice:   a.BasePrice,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Status:      string(a.Status),
	}
}

// parseIDParam はURLパスパラメータを数値IDとして解析する。
func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// newBodyParseError はリクエストボディ解析失敗のエラーを返す。
func newBodyParseError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// newInvalidIDError はIDパラメータ不正のエラーを返す。
func newInvalidIDError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "IDの形式が不正です。",
		Category: "validation",
		Action:   "数値のIDを指定してください。",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuctionNotFound, model.ErrCodeUserNotFound, model.ErrCodeNotificationNotFound:
		return http.StatusNotFound
	case model.ErrCodeAuctionClosed:
		return http.StatusConflict
	case model.ErrCodeInvalidAmount, model.ErrCodeInvalidAuctionTimes, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeBidTooLow:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidToken, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUsernameTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
