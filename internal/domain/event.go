package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind is the closed set of provider webhook events the reconciler understands.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventDelivered
	EventBounced
	EventComplained
)

const (
	eventTypeDelivered  = "email.delivered"
	eventTypeBounced    = "email.bounced"
	eventTypeComplained = "email.complained"
)

// ParseEventKind maps a provider event type onto an EventKind. Unrecognised types map to EventUnknown.
func ParseEventKind(eventType string) EventKind {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case eventTypeDelivered:
		return EventDelivered
	case eventTypeBounced:
		return EventBounced
	case eventTypeComplained:
		return EventComplained
	default:
		return EventUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case EventDelivered:
		return "delivered"
	case EventBounced:
		return "bounced"
	case EventComplained:
		return "complained"
	default:
		return "unknown"
	}
}

// TargetStatus is the ledger status an event moves a record to.
func (k EventKind) TargetStatus() (SentEmailStatus, bool) {
	switch k {
	case EventDelivered:
		return SentEmailStatusDelivered, true
	case EventBounced, EventComplained:
		return SentEmailStatusBounced, true
	default:
		return "", false
	}
}

const ComplaintReason = "Marked as spam by the recipient"

// WebhookEvent is a decoded provider callback.
type WebhookEvent struct {
	DeliveryID        string
	Type              string
	Kind              EventKind
	ProviderMessageID string
	Reason            string
	OccurredAt        *time.Time
}

func (e WebhookEvent) Validate() error {
	if e.Kind == EventUnknown {
		return nil
	}
	if strings.TrimSpace(e.ProviderMessageID) == "" {
		return fmt.Errorf("%w: data.email_id is required", ErrValidation)
	}
	return nil
}

// ErrorMessage returns the message to persist for bounce-like events.
func (e WebhookEvent) ErrorMessage() *string {
	var msg string
	switch e.Kind {
	case EventBounced:
		reason := strings.TrimSpace(e.Reason)
		if reason == "" {
			reason = "unknown reason"
		}
		msg = "Bounce: " + reason
	case EventComplained:
		msg = ComplaintReason
	default:
		return nil
	}
	return &msg
}

// DeliveryEvent is the audit row written for every reconciled webhook event.
type DeliveryEvent struct {
	ID                string
	DeliveryID        *string
	ProviderMessageID string
	SentEmailID       *string
	Kind              string
	Applied           bool
	PreviousStatus    *SentEmailStatus
	Reason            *string
	OccurredAt        *time.Time
	CreatedAt         time.Time
}
