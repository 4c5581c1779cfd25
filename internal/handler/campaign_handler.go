package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/service"
)

type CampaignService interface {
	Enqueue(ctx context.Context, userID string, campaignID string, correlationID string) error
	Summary(ctx context.Context, userID string, campaignID string) (*service.CampaignSummary, error)
}

type CampaignHandler struct {
	service CampaignService
}

func NewCampaignHandler(service CampaignService) (*CampaignHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	return &CampaignHandler{service: service}, nil
}

func RegisterCampaignRoutes(router fiber.Router, service CampaignService) error {
	h, err := NewCampaignHandler(service)
	if err != nil {
		return err
	}

	user := RequireUser()
	v1 := router.Group("/v1")
	v1.Post("/campaigns/:id/send", user, h.SendCampaign)
	v1.Get("/campaigns/:id/summary", user, h.GetSummary)

	return nil
}

type campaignSummaryResponse struct {
	CampaignID string           `json:"campaignId"`
	Status     string           `json:"status"`
	Total      int64            `json:"total"`
	Counts     map[string]int64 `json:"counts"`
}

func (h *CampaignHandler) SendCampaign(c *fiber.Ctx) error {
	campaignID := strings.TrimSpace(c.Params("id"))
	correlationID, _ := observability.CorrelationIDFromContext(c.UserContext())

	if err := h.service.Enqueue(c.UserContext(), currentUserID(c), campaignID, correlationID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"campaignId":    campaignID,
		"status":        "queued",
		"correlationId": correlationID,
	})
}

func (h *CampaignHandler) GetSummary(c *fiber.Ctx) error {
	campaignID := strings.TrimSpace(c.Params("id"))
	summary, err := h.service.Summary(c.UserContext(), currentUserID(c), campaignID)
	if err != nil {
		return toHTTPError(err)
	}

	counts := make(map[string]int64, len(summary.Counts))
	for status, n := range summary.Counts {
		counts[status.String()] = n
	}

	return c.Status(fiber.StatusOK).JSON(campaignSummaryResponse{
		CampaignID: summary.CampaignID,
		Status:     summary.Status.String(),
		Total:      summary.Total,
		Counts:     counts,
	})
}
