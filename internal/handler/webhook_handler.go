package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/provider"
	"github.com/kursadbilgin/campaign-mailer/internal/service"
	"go.uber.org/zap"
)

type WebhookReconciler interface {
	Handle(ctx context.Context, event domain.WebhookEvent) (service.ReconcileOutcome, error)
}

// DeliveryDeduper claims webhook delivery ids so redeliveries are processed once.
type DeliveryDeduper interface {
	Claim(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

type WebhookHandler struct {
	verifier   *provider.SignatureVerifier
	reconciler WebhookReconciler
	deduper    DeliveryDeduper
	logger     *zap.Logger
}

// NewWebhookHandler builds the receiver. A nil verifier means the signing secret
// is not configured and every call is rejected.
func NewWebhookHandler(
	verifier *provider.SignatureVerifier,
	reconciler WebhookReconciler,
	deduper DeliveryDeduper,
	logger *zap.Logger,
) (*WebhookHandler, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("webhook reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		deduper:    deduper,
		logger:     logger,
	}, nil
}

func RegisterWebhookRoutes(router fiber.Router, h *WebhookHandler) {
	router.Group("/v1").Post("/webhooks/resend", h.HandleResend)
}

func (h *WebhookHandler) HandleResend(c *fiber.Ctx) error {
	ctx := c.UserContext()
	logger := observability.WithContextLogger(h.logger, ctx)

	if h.verifier == nil {
		logger.Warn("webhook rejected, signing secret not configured")
		return fiber.NewError(fiber.StatusUnauthorized, "webhook signing secret is not configured")
	}

	headers := signatureHeaders(c)
	body := c.Body()
	if err := h.verifier.Verify(headers, body); err != nil {
		logger.Warn("webhook signature rejected", zap.String("deliveryId", headers.ID), zap.Error(err))
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	event, err := provider.ParseWebhookEvent(headers.ID, body)
	if err != nil {
		return toHTTPError(err)
	}

	if h.deduper != nil {
		claimed, err := h.deduper.Claim(ctx, event.DeliveryID)
		switch {
		case err != nil:
			// Processing continues without dedupe while Redis is unavailable.
			logger.Error("webhook dedupe unavailable", zap.String("deliveryId", event.DeliveryID), zap.Error(err))
		case !claimed:
			logger.Info("duplicate webhook delivery acknowledged", zap.String("deliveryId", event.DeliveryID))
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"success":   true,
				"duplicate": true,
			})
		}
	}

	outcome, err := h.reconciler.Handle(ctx, event)
	if err != nil {
		h.release(ctx, logger, event.DeliveryID)
		if errors.Is(err, domain.ErrValidation) {
			return toHTTPError(err)
		}
		logger.Error("webhook reconciliation failed",
			zap.String("deliveryId", event.DeliveryID),
			zap.String("eventType", event.Type),
			zap.Error(err),
		)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to process webhook")
	}
	if outcome == service.ReconcileDeferred {
		h.release(ctx, logger, event.DeliveryID)
		return fiber.NewError(fiber.StatusServiceUnavailable, "provider message not recorded yet, retry later")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"outcome": string(outcome),
	})
}

func (h *WebhookHandler) release(ctx context.Context, logger *zap.Logger, deliveryID string) {
	if h.deduper == nil {
		return
	}
	if err := h.deduper.Release(context.WithoutCancel(ctx), deliveryID); err != nil {
		logger.Error("failed to release webhook delivery", zap.String("deliveryId", deliveryID), zap.Error(err))
	}
}

func signatureHeaders(c *fiber.Ctx) provider.SignatureHeaders {
	return provider.SignatureHeaders{
		ID:        headerOrAlias(c, "svix-id", "webhook-id"),
		Timestamp: headerOrAlias(c, "svix-timestamp", "webhook-timestamp"),
		Signature: headerOrAlias(c, "svix-signature", "webhook-signature"),
	}
}

func headerOrAlias(c *fiber.Ctx, name string, alias string) string {
	if value := strings.TrimSpace(c.Get(name)); value != "" {
		return value
	}
	return strings.TrimSpace(c.Get(alias))
}
