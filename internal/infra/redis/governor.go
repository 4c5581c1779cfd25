package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/campaign-mailer/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sendSlotKeyPrefix = "ratelimit:send-slot:"
	slotPollMin       = 10 * time.Millisecond
)

var _ ratelimit.Governor = (*SendGovernor)(nil)

// SendGovernor spaces provider calls across every process sharing a Redis
// instance. A send slot is a key held for one interval; whoever sets it may
// send. If Redis is unreachable the governor falls back to spacing within
// this process only.
type SendGovernor struct {
	client   *goredis.Client
	key      string
	interval time.Duration
	local    ratelimit.Governor
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSendGovernor(client *goredis.Client, account string, interval time.Duration, logger *zap.Logger) (*SendGovernor, error) {
	return newSendGovernor(client, account, interval, logger, time.Now, sleepWithContext)
}

func newSendGovernor(
	client *goredis.Client,
	account string,
	interval time.Duration,
	logger *zap.Logger,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendGovernor, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SendGovernor{
		client:   client,
		key:      sendSlotKeyPrefix + account,
		interval: interval,
		local:    ratelimit.NewFixedInterval(interval),
		logger:   logger,
		now:      nowFn,
		sleep:    sleepFn,
	}, nil
}

// Wait blocks until this caller holds the shared send slot.
func (g *SendGovernor) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil || g.interval <= 0 {
		return nil
	}

	for {
		claimed, err := g.client.SetNX(ctx, g.key, g.now().UTC().Format(time.RFC3339Nano), g.interval).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			g.logger.Warn("send slot unavailable in redis, spacing locally",
				zap.String("key", g.key),
				zap.Error(err),
			)
			return g.local.Wait(ctx)
		}
		if claimed {
			return nil
		}

		if err := g.sleep(ctx, g.pollDelay(ctx)); err != nil {
			return err
		}
	}
}

// pollDelay is the remaining life of the current slot, bounded to
// [slotPollMin, interval].
func (g *SendGovernor) pollDelay(ctx context.Context) time.Duration {
	ttl, err := g.client.PTTL(ctx, g.key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return slotPollMin
	}
	if ttl < slotPollMin {
		return slotPollMin
	}
	if ttl > g.interval {
		return g.interval
	}
	return ttl
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
