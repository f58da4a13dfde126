package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

type notificationRepository interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationService is the read side of the notification log.
type NotificationService struct {
	repo   notificationRepository
	limit  int
	logger *zap.Logger
}

// NewNotificationService constructs the service; limit caps the feed length.
func NewNotificationService(repo notificationRepository, limit int, logger *zap.Logger) *NotificationService {
	if limit <= 0 {
		limit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, limit: limit, logger: logger}
}

// List returns the caller's most recent notifications and the unread total.
func (s *NotificationService) List(ctx context.Context, actor models.Actor) (*dto.NotificationFeed, error) {
	items, err := s.repo.ListRecent(ctx, actor.UserID, s.limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	unread, err := s.repo.CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count unread notifications")
	}
	return &dto.NotificationFeed{Items: items, Unread: unread}, nil
}

// MarkAllRead flags every notification of the caller as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor models.Actor) (int64, error) {
	changed, err := s.repo.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to mark notifications read")
	}
	s.logger.Debug("notifications marked read", zap.String("user_id", actor.UserID), zap.Int64("count", changed))
	return changed, nil
}
