package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

type resendWebhookPayload struct {
	Type      string            `json:"type"`
	CreatedAt string            `json:"created_at"`
	Data      resendWebhookData `json:"data"`
}

type resendWebhookData struct {
	EmailID   string `json:"email_id"`
	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`
	Reason    string `json:"reason"`
	Bounce    *struct {
		Message string `json:"message"`
	} `json:"bounce"`
}

// ParseWebhookEvent decodes a Resend webhook body. Known event kinds must carry
// data.email_id.
func ParseWebhookEvent(deliveryID string, body []byte) (domain.WebhookEvent, error) {
	var payload resendWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: invalid webhook body", domain.ErrValidation)
	}

	eventType := strings.TrimSpace(payload.Type)
	if eventType == "" {
		return domain.WebhookEvent{}, fmt.Errorf("%w: type is required", domain.ErrValidation)
	}

	reason := strings.TrimSpace(payload.Data.Reason)
	if reason == "" && payload.Data.Bounce != nil {
		reason = strings.TrimSpace(payload.Data.Bounce.Message)
	}

	event := domain.WebhookEvent{
		DeliveryID:        strings.TrimSpace(deliveryID),
		Type:              eventType,
		Kind:              domain.ParseEventKind(eventType),
		ProviderMessageID: strings.TrimSpace(payload.Data.EmailID),
		Reason:            reason,
		OccurredAt:        firstTimestamp(payload.Data.Timestamp, payload.Data.CreatedAt, payload.CreatedAt),
	}
	if err := event.Validate(); err != nil {
		return domain.WebhookEvent{}, err
	}
	return event, nil
}

func firstTimestamp(values ...string) *time.Time {
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05.999999Z07:00"} {
			if t, err := time.Parse(layout, raw); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}
