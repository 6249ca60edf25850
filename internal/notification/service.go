// Package notification は通知の照会・既読管理のドメインロジックを提供する。
// 通知の作成はworker/sweepと入札処理が行い、このパッケージは所有者による
// 読み取り・既読化・削除のみを扱う。
package notification

import (
	"context"
	"log/slog"

	"github.com/hitoshi/auctiond/internal/model"
	"github.com/hitoshi/auctiond/internal/repository"
)

// Service は通知管理のサービス層。
// すべての操作は対象ユーザー自身の通知に限定される。
type Service struct {
	notifRepo repository.NotificationRepository
}

// NewService はServiceを生成する。
func NewService(notifRepo repository.NotificationRepository) *Service {
	return &Service{notifRepo: notifRepo}
}

// List はユーザー宛の通知を新しい順で返す。
func (s *Service) List(ctx context.Context, userID int64) ([]*model.Notification, error) {
	return s.notifRepo.ListByUser(ctx, userID)
}

// MarkRead は指定通知を既読にする。
// 他ユーザー宛の通知は存在しないものとして扱う。
func (s *Service) MarkRead(ctx context.Context, notificationID, userID int64) error {
	updated, err := s.notifRepo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !updated {
		return model.NewNotificationNotFoundError(notificationID)
	}
	return nil
}

// MarkAllRead はユーザー宛の全未読通知を既読にし、更新件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	count, err := s.notifRepo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	slog.Info("notifications marked as read",
		slog.Int64("user_id", userID),
		slog.Int64("count", count),
	)

	return count, nil
}

// Delete は指定通知を削除する。
// 他ユーザー宛の通知は存在しないものとして扱う。
func (s *Service) Delete(ctx context.Context, notificationID, userID int64) error {
	deleted, err := s.notifRepo.Delete(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewNotificationNotFoundError(notificationID)
	}
	return nil
}

// DeleteRead はユーザー宛の既読通知をすべて削除し、削除件数を返す。
func (s *Service) DeleteRead(ctx context.Context, userID int64) (int64, error) {
	return s.notifRepo.DeleteRead(ctx, userID)
}
