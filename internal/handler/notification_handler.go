package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/auctiond/internal/middleware"
	"github.com/hitoshi/auctiond/internal/model"
)

// NotificationServiceInterface は通知ハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	// List はユーザー宛の通知一覧を新しい順で返す。
	List(ctx context.Context, userID int64) ([]*model.Notification, error)
	// MarkRead は通知1件を既読にする。
	MarkRead(ctx context.Context, notificationID, userID int64) error
	// MarkAllRead はユーザー宛の全通知を既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	// Delete は通知1件を削除する。
	Delete(ctx context.Context, notificationID, userID int64) error
	// DeleteRead は既読の通知をまとめて削除し、削除件数を返す。
	DeleteRead(ctx context.Context, userID int64) (int64, error)
}

// NotificationHandler は通知管理のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationServiceInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// notificationResponse は通知1件のAPIレスポンス。
type notificationResponse struct {
	ID        int64     `json:"id"`
	AuctionID int64     `json:"auction_id"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// countResponse は一括操作の件数レスポンス。
type countResponse struct {
	Count int64 `json:"count"`
}

// ListNotifications はユーザー宛の通知一覧を返す。
// GET /api/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	notifications, err := h.service.List(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]notificationResponse, len(notifications))
	for i, n := range notifications {
		results[i] = toNotificationResponse(n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// MarkRead は通知1件を既読にする。
// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	notificationID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidIDError())
		return
	}

	if err := h.service.MarkRead(r.Context(), notificationID, identity.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead はユーザー宛の全通知を既読にする。
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	count, err := h.service.MarkAllRead(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countResponse{Count: count})
}

// DeleteNotification は通知1件を削除する。
// DELETE /api/notifications/:id
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	notificationID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidIDError())
		return
	}

	if err := h.service.Delete(r.Context(), notificationID, identity.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteReadNotifications は既読の通知をまとめて削除する。
// DELETE /api/notifications/read
func (h *NotificationHandler) DeleteReadNotifications(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	count, err := h.service.DeleteRead(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countResponse{Count: count})
}

// toNotificationResponse はmodel.NotificationからAPIレスポンスに変換する。
func toNotificationResponse(n *model.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		AuctionID: n.AuctionID,
		Message:   n.Message,
		Category:  string(n.Category),
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
