package queue

import (
	"context"
	"fmt"
)

// Publisher publishes campaign dispatch jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg CampaignDispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message. A returned error dead-letters
// the delivery.
type MessageHandler func(ctx context.Context, msg CampaignDispatchMessage) error

// Consumer consumes campaign dispatch jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// CampaignDispatchQueue carries one job per campaign send request.
	CampaignDispatchQueue = "campaign.dispatch"

	// CampaignDispatchPrefetch keeps a single campaign in flight per consumer so the
	// provider pacing stays global to the process.
	CampaignDispatchPrefetch = 1
)

var workQueues = []string{CampaignDispatchQueue}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.campaign.dispatch.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

func WorkQueueNames() []string {
	return append([]string(nil), workQueues...)
}

func DLQNames() []string {
	queues := make([]string, 0, len(workQueues))
	for _, queue := range workQueues {
		queues = append(queues, DLQName(queue))
	}
	return queues
}
