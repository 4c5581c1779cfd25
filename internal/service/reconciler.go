package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"go.uber.org/zap"
)

// ReconcileOutcome describes what a webhook event did to the ledger.
type ReconcileOutcome string

const (
	ReconcileApplied        ReconcileOutcome = "applied"
	ReconcileNoop           ReconcileOutcome = "noop"
	ReconcileIgnored        ReconcileOutcome = "ignored"
	ReconcileUnknownMessage ReconcileOutcome = "unknown_message"
	// ReconcileDeferred means the message is not in the ledger yet but the
	// event is recent enough that a provider retry may find it.
	ReconcileDeferred ReconcileOutcome = "deferred"
)

// unknownMessageRetryWindow is how long after the event an unknown provider
// message id is retried instead of recorded as unknown. It covers the gap
// between the provider response and the ledger write.
const unknownMessageRetryWindow = 15 * time.Minute

// Notifier creates in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, notification *domain.Notification) error
}

// Reconciler applies provider delivery events to the sent_emails ledger.
type Reconciler struct {
	emails   repository.SentEmailRepository
	events   repository.DeliveryEventRepository
	notifier Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

func NewReconciler(
	emails repository.SentEmailRepository,
	events repository.DeliveryEventRepository,
	notifier Notifier,
	logger *zap.Logger,
) (*Reconciler, error) {
	if emails == nil {
		return nil, fmt.Errorf("sent email repository is required")
	}
	if events == nil {
		return nil, fmt.Errorf("delivery event repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		emails:   emails,
		events:   events,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (r *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

func (r *Reconciler) Handle(ctx context.Context, event domain.WebhookEvent) (ReconcileOutcome, error) {
	logger := observability.WithContextLogger(r.logger, ctx).With(
		zap.String("eventType", event.Type),
		zap.String("providerMessageId", event.ProviderMessageID),
	)

	target, known := event.Kind.TargetStatus()
	if !known {
		logger.Info("ignoring unsupported webhook event")
		if err := r.audit(ctx, event, nil, nil, false); err != nil {
			return "", err
		}
		r.metrics.IncWebhookEvent(event.Kind.String(), string(ReconcileIgnored))
		return ReconcileIgnored, nil
	}

	if err := event.Validate(); err != nil {
		return "", err
	}

	record, err := r.emails.GetByProviderMessageID(ctx, event.ProviderMessageID)
	if errors.Is(err, domain.ErrNotFound) {
		if r.retryable(event) {
			logger.Info("deferring webhook event for a message not yet in the ledger")
			r.metrics.IncWebhookEvent(event.Kind.String(), string(ReconcileDeferred))
			return ReconcileDeferred, nil
		}
		logger.Warn("webhook event for unknown provider message")
		if err := r.audit(ctx, event, nil, nil, false); err != nil {
			return "", err
		}
		r.metrics.IncWebhookEvent(event.Kind.String(), string(ReconcileUnknownMessage))
		return ReconcileUnknownMessage, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load sent email: %w", err)
	}

	previous := record.Status
	applied := false
	if previous.CanTransitionTo(target) {
		update := repository.TransitionUpdate{
			Status:       target,
			ErrorMessage: event.ErrorMessage(),
		}
		if event.Kind == domain.EventDelivered {
			deliveredAt := r.now().UTC()
			if event.OccurredAt != nil {
				deliveredAt = event.OccurredAt.UTC()
			}
			update.DeliveredAt = &deliveredAt
		}

		applied, err = r.emails.ApplyTransition(ctx, record.ID, update)
		if err != nil {
			return "", fmt.Errorf("failed to apply %s transition: %w", target, err)
		}
	}

	outcome := ReconcileNoop
	if applied {
		outcome = ReconcileApplied
		record.Status = target
		r.notifyOwner(ctx, logger, record, event)
	}

	if err := r.audit(ctx, event, &record.ID, &previous, applied); err != nil {
		return "", err
	}

	logger.Info("webhook event reconciled",
		zap.String("sentEmailId", record.ID),
		zap.String("previousStatus", previous.String()),
		zap.String("targetStatus", target.String()),
		zap.String("outcome", string(outcome)),
	)
	r.metrics.IncWebhookEvent(event.Kind.String(), string(outcome))
	return outcome, nil
}

// retryable reports whether an event for an unknown message is still inside
// the retry window. Events without a timestamp are never deferred.
func (r *Reconciler) retryable(event domain.WebhookEvent) bool {
	if event.OccurredAt == nil {
		return false
	}
	return r.now().Sub(*event.OccurredAt) < unknownMessageRetryWindow
}

func (r *Reconciler) notifyOwner(ctx context.Context, logger *zap.Logger, record *domain.SentEmail, event domain.WebhookEvent) {
	if r.notifier == nil || strings.TrimSpace(record.UserID) == "" {
		return
	}

	notification := &domain.Notification{
		UserID:      record.UserID,
		SentEmailID: &record.ID,
		CampaignID:  record.CampaignID,
	}
	switch event.Kind {
	case domain.EventDelivered:
		notification.Type = domain.NotificationTypeSuccess
		notification.Title = "Email delivered"
		notification.Message = fmt.Sprintf("%q was delivered to %s.", record.Subject, record.RecipientEmail)
	case domain.EventBounced:
		notification.Type = domain.NotificationTypeError
		notification.Title = "Email bounced"
		notification.Message = fmt.Sprintf("%q to %s bounced. %s", record.Subject, record.RecipientEmail, derefString(event.ErrorMessage()))
	case domain.EventComplained:
		notification.Type = domain.NotificationTypeError
		notification.Title = "Spam complaint"
		notification.Message = fmt.Sprintf("%s marked %q as spam.", record.RecipientEmail, record.Subject)
	default:
		return
	}

	if err := r.notifier.Notify(ctx, notification); err != nil {
		logger.Error("failed to notify owner about delivery event",
			zap.String("sentEmailId", record.ID),
			zap.Error(err),
		)
	}
}

func (r *Reconciler) audit(
	ctx context.Context,
	event domain.WebhookEvent,
	sentEmailID *string,
	previous *domain.SentEmailStatus,
	applied bool,
) error {
	var deliveryID *string
	if id := strings.TrimSpace(event.DeliveryID); id != "" {
		deliveryID = &id
	}

	reason := event.ErrorMessage()
	if reason == nil && strings.TrimSpace(event.Reason) != "" {
		value := strings.TrimSpace(event.Reason)
		reason = &value
	}

	kind := event.Kind.String()
	if event.Kind == domain.EventUnknown && strings.TrimSpace(event.Type) != "" {
		kind = strings.TrimSpace(event.Type)
	}

	entry := &domain.DeliveryEvent{
		ID:                r.newID(),
		DeliveryID:        deliveryID,
		ProviderMessageID: event.ProviderMessageID,
		SentEmailID:       sentEmailID,
		Kind:              kind,
		Applied:           applied,
		PreviousStatus:    previous,
		Reason:            reason,
		OccurredAt:        event.OccurredAt,
		CreatedAt:         r.now().UTC(),
	}
	if err := r.events.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to record delivery event: %w", err)
	}
	return nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
