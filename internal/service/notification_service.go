package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"go.uber.org/zap"
)

// NotificationService stores and serves in-app notifications for account owners.
type NotificationService struct {
	notifications repository.NotificationRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(notifications repository.NotificationRepository, logger *zap.Logger) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *NotificationService) Notify(ctx context.Context, notification *domain.Notification) error {
	if notification == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if strings.TrimSpace(notification.UserID) == "" {
		return fmt.Errorf("%w: notification user is required", domain.ErrValidation)
	}
	switch notification.Type {
	case domain.NotificationTypeSuccess, domain.NotificationTypeError, domain.NotificationTypeCampaignUpdate:
	default:
		return fmt.Errorf("%w: invalid notification type %q", domain.ErrValidation, notification.Type)
	}

	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now().UTC()
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}
	return s.notifications.List(ctx, repository.NotificationListParams{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
	})
}

func (s *NotificationService) MarkRead(ctx context.Context, userID string, id string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.MarkRead(ctx, userID, id)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}
	return s.notifications.CountUnread(ctx, userID)
}
