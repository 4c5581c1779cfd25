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
	"github.com/kursadbilgin/campaign-mailer/internal/provider"
	"github.com/kursadbilgin/campaign-mailer/internal/ratelimit"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher sends messages one at a time through the provider, recording every
// attempt in the sent_emails ledger.
type Dispatcher struct {
	emails   repository.SentEmailRepository
	provider provider.Provider
	governor ratelimit.Governor
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

func NewDispatcher(
	emails repository.SentEmailRepository,
	provider provider.Provider,
	governor ratelimit.Governor,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if emails == nil {
		return nil, fmt.Errorf("sent email repository is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if governor == nil {
		governor = ratelimit.NewFixedInterval(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		emails:   emails,
		provider: provider,
		governor: governor,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch sends messages in input order, taking a governor slot before every
// provider call. Per-message failures are reported in the result. A non-nil
// error means the context ended mid-batch; the partial result is returned with it.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []domain.OutboundMessage) (*domain.DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := domain.NewDispatchResult(len(messages))
	if len(messages) == 0 {
		return result, nil
	}

	logger := observability.WithContextLogger(d.logger, ctx)

	for i := range messages {
		if err := ctx.Err(); err != nil {
			d.finishBatch(logger, result, len(messages), err)
			return result, err
		}

		outcome, err := d.dispatchOne(ctx, logger, messages[i])
		if err != nil {
			d.finishBatch(logger, result, len(messages), err)
			return result, err
		}
		result.Record(outcome)
	}

	d.finishBatch(logger, result, len(messages), nil)
	return result, nil
}

// SendOne dispatches a single message and returns its outcome.
func (d *Dispatcher) SendOne(ctx context.Context, message domain.OutboundMessage) (domain.DispatchOutcome, error) {
	result, err := d.Dispatch(ctx, []domain.OutboundMessage{message})
	if result == nil || len(result.Outcomes) == 0 {
		if err == nil {
			err = fmt.Errorf("dispatch produced no outcome")
		}
		return domain.DispatchOutcome{To: message.To}, err
	}
	return result.Outcomes[0], err
}

// dispatchOne returns an error only when the governor wait is interrupted; the
// message is then left untouched.
func (d *Dispatcher) dispatchOne(ctx context.Context, logger *zap.Logger, message domain.OutboundMessage) (domain.DispatchOutcome, error) {
	outcome := domain.DispatchOutcome{To: message.To}

	if err := message.Validate(); err != nil {
		outcome.Error = err.Error()
		d.metrics.IncEmailFailed(provider.FailureReason(err))
		return outcome, nil
	}

	if err := d.governor.Wait(ctx); err != nil {
		return outcome, err
	}

	record := d.newLedgerRecord(message)
	if err := d.emails.Create(ctx, record); err != nil {
		logger.Error("failed to create ledger record",
			zap.String("recipient", message.To),
			zap.Error(err),
		)
		outcome.Error = fmt.Sprintf("failed to record email: %v", err)
		d.metrics.IncEmailFailed("ledger_error")
		return outcome, nil
	}
	outcome.SentEmailID = record.ID

	sendStart := d.now()
	response, sendErr := d.safeSend(ctx, message)
	d.metrics.ObserveEmailSendDuration(d.now().Sub(sendStart))

	if sendErr == nil && (response == nil || strings.TrimSpace(response.MessageID) == "") {
		sendErr = &provider.ProviderError{Message: "provider response did not include a message id"}
	}

	// Ledger writes after the provider call must land even if the caller gave up.
	ledgerCtx := context.WithoutCancel(ctx)

	if sendErr != nil {
		outcome.Error = sendErr.Error()
		d.metrics.IncEmailFailed(provider.FailureReason(sendErr))

		if err := d.emails.MarkFailed(ledgerCtx, record.ID, outcome.Error); err != nil {
			logger.Error("failed to mark email as failed",
				zap.String("sentEmailId", record.ID),
				zap.Error(err),
			)
		}
		logger.Warn("email send failed",
			zap.String("sentEmailId", record.ID),
			zap.String("recipient", message.To),
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
		return outcome, nil
	}

	outcome.Success = true
	outcome.ProviderMessageID = response.MessageID
	d.metrics.IncEmailSent()

	if err := d.emails.MarkSent(ledgerCtx, record.ID, response.MessageID, d.now().UTC()); err != nil {
		logger.Error("failed to mark email as sent",
			zap.String("sentEmailId", record.ID),
			zap.String("providerMessageId", response.MessageID),
			zap.Error(err),
		)
	}

	return outcome, nil
}

func (d *Dispatcher) safeSend(ctx context.Context, message domain.OutboundMessage) (response *provider.ProviderResponse, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			response = nil
			err = fmt.Errorf("provider panicked: %v", recovered)
		}
	}()

	return d.provider.Send(ctx, message)
}

func (d *Dispatcher) newLedgerRecord(message domain.OutboundMessage) *domain.SentEmail {
	content := message.HTML
	if strings.TrimSpace(content) == "" {
		content = message.Text
	}

	var recipientName *string
	if name := strings.TrimSpace(message.ToName); name != "" {
		recipientName = &name
	}

	now := d.now().UTC()
	return &domain.SentEmail{
		ID:             d.newID(),
		CampaignID:     message.CampaignID,
		UserID:         message.UserID,
		RecipientEmail: strings.TrimSpace(message.To),
		RecipientName:  recipientName,
		Subject:        message.Subject,
		Content:        content,
		Status:         domain.SentEmailStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (d *Dispatcher) finishBatch(logger *zap.Logger, result *domain.DispatchResult, total int, err error) {
	outcome := "complete"
	switch {
	case err != nil:
		outcome = "cancelled"
	case result.Sent == 0:
		outcome = "failed"
	case result.Failed > 0:
		outcome = "partial"
	}
	d.metrics.IncDispatchBatch(outcome)

	fields := []zap.Field{
		zap.Int("total", total),
		zap.Int("attempted", result.Attempted),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.String("outcome", outcome),
	}
	if err != nil {
		level := zap.WarnLevel
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			level = zap.ErrorLevel
		}
		logger.Log(level, "bulk dispatch interrupted", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("bulk dispatch finished", fields...)
}
