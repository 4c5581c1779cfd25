package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"github.com/kursadbilgin/campaign-mailer/internal/queue"
	"go.uber.org/zap"
)

// CampaignSender runs one campaign dispatch.
type CampaignSender interface {
	Send(ctx context.Context, campaignID string) (*CampaignSendResult, error)
}

// CampaignWorker consumes campaign dispatch jobs. A single consumer keeps the
// provider pacing global to the process.
type CampaignWorker struct {
	consumer queue.Consumer
	sender   CampaignSender
	logger   *zap.Logger
}

func NewCampaignWorker(consumer queue.Consumer, sender CampaignSender, logger *zap.Logger) (*CampaignWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("campaign sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignWorker{
		consumer: consumer,
		sender:   sender,
		logger:   logger,
	}, nil
}

// Start consumes the campaign queue until context cancellation.
func (w *CampaignWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.logger.Info("campaign worker started", zap.String("queue", queue.CampaignDispatchQueue))

	if err := w.consumer.Consume(ctx, queue.CampaignDispatchQueue, w.processMessage); err != nil {
		w.logger.Error("campaign worker stopped with error", zap.Error(err))
		return err
	}

	w.logger.Info("campaign worker stopped")
	return nil
}

func (w *CampaignWorker) processMessage(ctx context.Context, msg queue.CampaignDispatchMessage) error {
	logger := observability.WithContextLogger(w.logger, ctx).With(
		zap.String("campaignId", msg.CampaignID),
		zap.String("source", msg.Source),
	)

	result, err := w.sender.Send(ctx, msg.CampaignID)
	if err != nil {
		if IsPermanentCampaignError(err) {
			logger.Warn("dropping campaign job", zap.Error(err))
			return nil
		}
		return fmt.Errorf("campaign dispatch failed: %w", err)
	}

	fields := []zap.Field{zap.String("status", result.Status.String())}
	if result.Result != nil {
		fields = append(fields,
			zap.Int("sent", result.Result.Sent),
			zap.Int("failed", result.Result.Failed),
		)
	}
	logger.Info("campaign job processed", fields...)
	return nil
}
