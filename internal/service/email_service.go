package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/campaign-mailer/internal/domain"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultEmailPageSize = 20
	maxEmailPageSize     = 100

	// maxBulkSize caps one synchronous bulk request. Campaigns are not bound by it.
	maxBulkSize = 1000
)

// MessageDispatcher sends one message or an ordered batch.
type MessageDispatcher interface {
	BulkDispatcher
	SendOne(ctx context.Context, message domain.OutboundMessage) (domain.DispatchOutcome, error)
}

type EmailListParams struct {
	UserID     string
	CampaignID *string
	Status     *domain.SentEmailStatus
	Page       int
	PageSize   int
}

type EmailPage struct {
	Items    []domain.SentEmail
	Total    int64
	Page     int
	PageSize int
}

type EmailDetail struct {
	Email  *domain.SentEmail
	Events []domain.DeliveryEvent
}

// EmailService serves the direct sending endpoints and ledger reads.
type EmailService struct {
	dispatcher MessageDispatcher
	emails     repository.SentEmailRepository
	events     repository.DeliveryEventRepository
	logger     *zap.Logger
}

func NewEmailService(
	dispatcher MessageDispatcher,
	emails repository.SentEmailRepository,
	events repository.DeliveryEventRepository,
	logger *zap.Logger,
) (*EmailService, error) {
	if emails == nil {
		return nil, fmt.Errorf("sent email repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmailService{
		dispatcher: dispatcher,
		emails:     emails,
		events:     events,
		logger:     logger,
	}, nil
}

func (s *EmailService) Send(ctx context.Context, userID string, message domain.OutboundMessage) (domain.DispatchOutcome, error) {
	if err := s.requireSending(userID); err != nil {
		return domain.DispatchOutcome{To: message.To}, err
	}
	message.UserID = userID
	return s.dispatcher.SendOne(ctx, message)
}

func (s *EmailService) SendBulk(ctx context.Context, userID string, messages []domain.OutboundMessage) (*domain.DispatchResult, error) {
	if err := s.requireSending(userID); err != nil {
		return nil, err
	}
	if len(messages) > maxBulkSize {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkSize)
	}
	for i := range messages {
		messages[i].UserID = userID
	}
	return s.dispatcher.Dispatch(ctx, messages)
}

func (s *EmailService) List(ctx context.Context, params EmailListParams) (*EmailPage, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *params.Status)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultEmailPageSize
	}
	if pageSize > maxEmailPageSize {
		pageSize = maxEmailPageSize
	}

	items, total, err := s.emails.List(ctx, repository.SentEmailListParams{
		UserID:     params.UserID,
		CampaignID: params.CampaignID,
		Status:     params.Status,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sent emails: %w", err)
	}

	return &EmailPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Get returns one ledger row owned by the user together with its delivery events.
func (s *EmailService) Get(ctx context.Context, userID string, id string) (*EmailDetail, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}

	email, err := s.emails.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if email.UserID != userID {
		return nil, domain.ErrNotFound
	}

	detail := &EmailDetail{Email: email, Events: []domain.DeliveryEvent{}}
	if s.events == nil {
		return detail, nil
	}

	events, err := s.events.ListBySentEmailID(ctx, email.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery events: %w", err)
	}
	detail.Events = events
	return detail, nil
}

func (s *EmailService) requireSending(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user is required", domain.ErrUnauthorized)
	}
	if s.dispatcher == nil {
		return fmt.Errorf("%w: email sending is not configured", domain.ErrConfiguration)
	}
	return nil
}
