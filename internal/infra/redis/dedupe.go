package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultDedupeTTL = 24 * time.Hour
	dedupeKeyPrefix  = "webhook:delivery:"
)

// WebhookDeduper remembers provider delivery ids so a redelivered webhook is
// processed once.
type WebhookDeduper struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewWebhookDeduper(client *goredis.Client, ttl time.Duration) (*WebhookDeduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}

	return &WebhookDeduper{client: client, ttl: ttl}, nil
}

// Claim records deliveryID and reports whether this is its first delivery.
func (d *WebhookDeduper) Claim(ctx context.Context, deliveryID string) (bool, error) {
	if d == nil || d.client == nil {
		return false, fmt.Errorf("webhook deduper is not initialized")
	}

	key, err := dedupeKey(deliveryID)
	if err != nil {
		return false, err
	}

	claimed, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook delivery: %w", err)
	}
	return claimed, nil
}

// Release forgets deliveryID so a provider retry is processed again.
func (d *WebhookDeduper) Release(ctx context.Context, deliveryID string) error {
	if d == nil || d.client == nil {
		return fmt.Errorf("webhook deduper is not initialized")
	}

	key, err := dedupeKey(deliveryID)
	if err != nil {
		return err
	}

	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release webhook delivery: %w", err)
	}
	return nil
}

func dedupeKey(deliveryID string) (string, error) {
	trimmed := strings.TrimSpace(deliveryID)
	if trimmed == "" {
		return "", fmt.Errorf("delivery id is required")
	}
	return dedupeKeyPrefix + trimmed, nil
}
