package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID string, id string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	user := RequireUser()
	v1 := router.Group("/v1")
	v1.Get("/notifications", user, h.ListNotifications)
	v1.Post("/notifications/:id/read", user, h.MarkRead)

	return nil
}

type notificationResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	SentEmailID *string   `json:"sentEmailId,omitempty"`
	CampaignID  *string   `json:"campaignId,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

type listNotificationsResponse struct {
	Data        []notificationResponse `json:"data"`
	UnreadCount int64                  `json:"unreadCount"`
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID := currentUserID(c)
	unreadOnly := c.QueryBool("unread", false)
	limit := c.QueryInt("limit", defaultNotificationLimit)
	if limit < 1 || limit > maxNotificationLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxNotificationLimit))
	}

	notifications, err := h.service.List(c.UserContext(), userID, unreadOnly, limit)
	if err != nil {
		return toHTTPError(err)
	}
	unread, err := h.service.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		data = append(data, notificationResponse{
			ID:          n.ID,
			Type:        n.Type.String(),
			Title:       n.Title,
			Message:     n.Message,
			SentEmailID: n.SentEmailID,
			CampaignID:  n.CampaignID,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data:        data,
		UnreadCount: unread,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.MarkRead(c.UserContext(), currentUserID(c), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"read":           true,
	})
}
