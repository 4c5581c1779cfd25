package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/kursadbilgin/campaign-mailer/internal/observability"
)

// RabbitMQConsumer delivers campaign jobs to a handler. Successful jobs are acked,
// failed jobs go to the dead-letter queue and malformed ones are rejected. Nothing
// is requeued.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume blocks until ctx is done, resubscribing with backoff whenever the channel
// or connection drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	logger := c.logger.With(zap.String("queue", queue))
	wait := reconnectBackoff
	for {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			wait = reconnectBackoff
			continue
		}

		logger.Warn("campaign queue subscription lost, retrying",
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}
	c.logger.Info("subscribed to campaign queue", zap.String("queue", queue), zap.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	logger := c.logger.With(
		zap.String("messageId", d.MessageId),
		zap.Bool("redelivered", d.Redelivered),
	)

	var msg CampaignDispatchMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		logger.Warn("rejecting campaign job: invalid JSON", zap.Error(err))
		return settle(d.Reject(false), "reject invalid message")
	}
	if err := msg.Validate(); err != nil {
		logger.Warn("rejecting campaign job: invalid payload",
			zap.String("campaignId", msg.CampaignID),
			zap.Error(err),
		)
		return settle(d.Reject(false), "reject invalid payload")
	}

	if msg.CorrelationID == "" {
		msg.CorrelationID = d.CorrelationId
	}
	if msg.Source == "" {
		if source, ok := d.Headers[sourceHeader].(string); ok {
			msg.Source = source
		}
	}

	handlerCtx := ctx
	if msg.CorrelationID != "" {
		handlerCtx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger = observability.WithContextLogger(logger, handlerCtx).With(
		zap.String("campaignId", msg.CampaignID),
		zap.String("source", msg.Source),
	)

	if err := handler(handlerCtx, msg); err != nil {
		logger.Error("dead-lettering campaign job", zap.Error(err))
		return settle(d.Nack(false, false), "nack failed job")
	}

	return settle(d.Ack(false), "ack campaign job")
}

func settle(err error, action string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
