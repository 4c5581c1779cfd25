package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/campaign-mailer/internal/queue"
	"github.com/kursadbilgin/campaign-mailer/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSchedulerScanInterval = 10 * time.Second
	defaultSchedulerScanLimit    = 100
)

// Scheduler periodically enqueues scheduled campaigns that are due.
type Scheduler struct {
	campaigns repository.CampaignRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewScheduler(
	campaigns repository.CampaignRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerScanInterval
	}
	if limit <= 0 {
		limit = defaultSchedulerScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		campaigns: campaigns,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler scan failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) scanDue(ctx context.Context) error {
	due, err := s.campaigns.GetDueScheduled(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due scheduled campaigns: %w", err)
	}

	for i := range due {
		campaign := due[i]
		msg := queue.CampaignDispatchMessage{
			CampaignID:    campaign.ID,
			CorrelationID: uuid.NewString(),
			Source:        queue.SourceScheduler,
			RequestedAt:   s.now().UTC(),
		}

		if err := s.publisher.Publish(ctx, queue.CampaignDispatchQueue, msg); err != nil {
			s.logger.Error("failed to enqueue scheduled campaign",
				zap.String("campaignId", campaign.ID),
				zap.Error(err),
			)
			continue
		}

		// Clearing the schedule keeps the next scan from publishing the same campaign again.
		if err := s.campaigns.ClearSchedule(ctx, campaign.ID); err != nil {
			s.logger.Error("failed to clear campaign schedule",
				zap.String("campaignId", campaign.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("scheduled campaign enqueued",
			zap.String("campaignId", campaign.ID),
			zap.String("correlationId", msg.CorrelationID),
		)
	}

	return nil
}
