package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dispatchMessageType = "campaign.dispatch"
	sourceHeader        = "x-dispatch-source"
)

// RabbitMQPublisher publishes campaign jobs in confirm mode: Publish returns only
// after the broker has taken responsibility for the message.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg CampaignDispatchMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch message: %w", err)
	}

	publishing, err := p.buildPublishing(msg)
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish campaign %s to %q: %w", msg.CampaignID, queue, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirmation for campaign %s: %w", msg.CampaignID, err)
	}
	if !acked {
		return fmt.Errorf("broker refused campaign %s on %q", msg.CampaignID, queue)
	}

	return nil
}

func (p *RabbitMQPublisher) buildPublishing(msg CampaignDispatchMessage) (amqp.Publishing, error) {
	now := p.now().UTC()
	if msg.RequestedAt.IsZero() {
		msg.RequestedAt = now
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	var headers amqp.Table
	if msg.Source != "" {
		headers = amqp.Table{sourceHeader: msg.Source}
	}

	return amqp.Publishing{
		Headers:       headers,
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     msg.CampaignID,
		CorrelationId: msg.CorrelationID,
		Type:          dispatchMessageType,
		Body:          payload,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
