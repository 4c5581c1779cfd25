package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/queue"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"go.uber.org/zap"
)

// BulkDispatcher sends an ordered batch of messages.
type BulkDispatcher interface {
	Dispatch(ctx context.Context, messages []domain.OutboundMessage) (*domain.DispatchResult, error)
}

type CampaignSendResult struct {
	CampaignID string
	Status     domain.CampaignStatus
	Result     *domain.DispatchResult
}

type CampaignSummary struct {
	CampaignID string
	Status     domain.CampaignStatus
	Total      int64
	Counts     map[domain.SentEmailStatus]int64
}

// CampaignService runs campaigns from draft to a final status.
type CampaignService struct {
	campaigns  repository.CampaignRepository
	contacts   repository.ContactRepository
	emails     repository.SentEmailRepository
	dispatcher BulkDispatcher
	notifier   Notifier
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	contacts repository.ContactRepository,
	emails repository.SentEmailRepository,
	dispatcher BulkDispatcher,
	notifier Notifier,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*CampaignService, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		campaigns:  campaigns,
		contacts:   contacts,
		emails:     emails,
		dispatcher: dispatcher,
		notifier:   notifier,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *CampaignService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Send dispatches a campaign to every subscribed contact of its owner and records
// the final status.
func (s *CampaignService) Send(ctx context.Context, campaignID string) (*CampaignSendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.contacts == nil || s.dispatcher == nil {
		return nil, fmt.Errorf("%w: campaign sending is not configured", domain.ErrConfiguration)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("campaignId", campaignID))

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.IsSendable() {
		return nil, fmt.Errorf("%w: campaign is %s", domain.ErrConflict, campaign.Status)
	}
	if err := s.campaigns.BeginSending(ctx, campaign.ID); err != nil {
		return nil, err
	}

	// Rollback and final writes must land even if the caller gave up.
	writeCtx := context.WithoutCancel(ctx)

	recipients, err := s.resolveRecipients(ctx, campaign.UserID)
	if err == nil && len(recipients) == 0 {
		err = fmt.Errorf("%w: campaign has no subscribed recipients", domain.ErrValidation)
	}
	if err != nil {
		s.rollback(writeCtx, logger, campaign.ID)
		return nil, err
	}

	logger.Info("campaign dispatch started", zap.Int("recipients", len(recipients)))

	result, dispatchErr := s.dispatcher.Dispatch(ctx, buildCampaignMessages(campaign, recipients))
	if dispatchErr != nil && (result == nil || result.Attempted == 0) {
		s.rollback(writeCtx, logger, campaign.ID)
		return nil, fmt.Errorf("campaign dispatch failed: %w", dispatchErr)
	}
	if dispatchErr != nil {
		logger.Warn("campaign dispatch interrupted, finalising with partial result",
			zap.Int("attempted", result.Attempted),
			zap.Int("recipients", len(recipients)),
			zap.Error(dispatchErr),
		)
	}

	status := domain.CampaignStatusFromResult(*result)
	var sentAt *time.Time
	if status != domain.CampaignStatusFailed {
		now := s.now().UTC()
		sentAt = &now
	}
	if err := s.campaigns.Finish(writeCtx, campaign.ID, status, sentAt); err != nil {
		return nil, fmt.Errorf("failed to record campaign status: %w", err)
	}
	s.metrics.IncCampaignFinished(status.String())

	s.notifyOwner(writeCtx, logger, campaign, status, result, len(recipients))

	logger.Info("campaign dispatch finished",
		zap.String("status", status.String()),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)

	return &CampaignSendResult{
		CampaignID: campaign.ID,
		Status:     status,
		Result:     result,
	}, nil
}

// Enqueue validates that the campaign can be sent and hands it to the worker queue.
func (s *CampaignService) Enqueue(ctx context.Context, userID string, campaignID string, correlationID string) error {
	if s.publisher == nil {
		return fmt.Errorf("%w: campaign queue is not configured", domain.ErrConfiguration)
	}

	campaign, err := s.ownedCampaign(ctx, userID, campaignID)
	if err != nil {
		return err
	}
	if !campaign.Status.IsSendable() {
		return fmt.Errorf("%w: campaign is %s", domain.ErrConflict, campaign.Status)
	}

	msg := queue.CampaignDispatchMessage{
		CampaignID:    campaign.ID,
		CorrelationID: correlationID,
		Source:        queue.SourceAPI,
		RequestedAt:   s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, queue.CampaignDispatchQueue, msg); err != nil {
		return fmt.Errorf("failed to enqueue campaign: %w", err)
	}

	observability.WithContextLogger(s.logger, ctx).Info("campaign enqueued",
		zap.String("campaignId", campaign.ID),
	)
	return nil
}

// Summary reports ledger counts by status for a campaign.
func (s *CampaignService) Summary(ctx context.Context, userID string, campaignID string) (*CampaignSummary, error) {
	if s.emails == nil {
		return nil, fmt.Errorf("%w: email ledger is not configured", domain.ErrConfiguration)
	}

	campaign, err := s.ownedCampaign(ctx, userID, campaignID)
	if err != nil {
		return nil, err
	}

	counts, err := s.emails.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaign emails: %w", err)
	}

	summary := &CampaignSummary{
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Counts:     make(map[domain.SentEmailStatus]int64, len(counts)),
	}
	for _, c := range counts {
		summary.Counts[c.Status] += c.Count
		summary.Total += c.Count
	}
	return summary, nil
}

func (s *CampaignService) ownedCampaign(ctx context.Context, userID string, campaignID string) (*domain.Campaign, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return campaign, nil
}

func (s *CampaignService) resolveRecipients(ctx context.Context, userID string) ([]domain.Contact, error) {
	contacts, err := s.contacts.ListSubscribedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve campaign recipients: %w", err)
	}

	seen := make(map[string]struct{}, len(contacts))
	recipients := make([]domain.Contact, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Unsubscribed {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(contact.Email))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, contact)
	}
	return recipients, nil
}

func (s *CampaignService) rollback(ctx context.Context, logger *zap.Logger, campaignID string) {
	if err := s.campaigns.RollbackToDraft(ctx, campaignID); err != nil {
		logger.Error("failed to roll campaign back to draft", zap.Error(err))
		return
	}
	logger.Info("campaign rolled back to draft")
}

func (s *CampaignService) notifyOwner(
	ctx context.Context,
	logger *zap.Logger,
	campaign *domain.Campaign,
	status domain.CampaignStatus,
	result *domain.DispatchResult,
	recipients int,
) {
	if s.notifier == nil {
		return
	}

	var title string
	switch status {
	case domain.CampaignStatusSent:
		title = "Campaign sent"
	case domain.CampaignStatusPartiallySent:
		title = "Campaign partially sent"
	default:
		title = "Campaign failed"
	}

	campaignID := campaign.ID
	notification := &domain.Notification{
		UserID:     campaign.UserID,
		Type:       domain.NotificationTypeCampaignUpdate,
		Title:      title,
		Message:    fmt.Sprintf("%q: %d of %d emails sent, %d failed.", campaign.Name, result.Sent, recipients, result.Failed),
		CampaignID: &campaignID,
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		logger.Error("failed to notify owner about campaign", zap.Error(err))
	}
}

func buildCampaignMessages(campaign *domain.Campaign, recipients []domain.Contact) []domain.OutboundMessage {
	campaignID := campaign.ID
	messages := make([]domain.OutboundMessage, 0, len(recipients))
	for _, contact := range recipients {
		plain := placeholderReplacer(contact, false)
		markup := placeholderReplacer(contact, true)

		var text string
		if campaign.Text != nil {
			text = plain.Replace(*campaign.Text)
		}

		messages = append(messages, domain.OutboundMessage{
			To:         strings.TrimSpace(contact.Email),
			ToName:     contact.DisplayName(),
			Subject:    plain.Replace(campaign.Subject),
			HTML:       markup.Replace(campaign.Content),
			Text:       text,
			CampaignID: &campaignID,
			UserID:     campaign.UserID,
		})
	}
	return messages
}

func placeholderReplacer(contact domain.Contact, escape bool) *strings.Replacer {
	value := func(s string) string {
		s = strings.TrimSpace(s)
		if escape {
			return html.EscapeString(s)
		}
		return s
	}

	return strings.NewReplacer(
		"{first_name}", value(derefString(contact.FirstName)),
		"{last_name}", value(derefString(contact.LastName)),
		"{email}", value(contact.Email),
		"{company}", value(derefString(contact.Company)),
	)
}

// IsPermanentCampaignError reports whether retrying the campaign job cannot succeed.
func IsPermanentCampaignError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrNotFound)
}
