package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestWebhookDeduperClaim(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	deduper, err := NewWebhookDeduper(rdb, time.Hour)
	if err != nil {
		t.Fatalf("NewWebhookDeduper() error = %v", err)
	}

	first, err := deduper.Claim(context.Background(), "msg_1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !first {
		t.Fatal("first delivery should be claimed")
	}

	again, err := deduper.Claim(context.Background(), "msg_1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if again {
		t.Fatal("duplicate delivery should not be claimed")
	}

	other, err := deduper.Claim(context.Background(), "msg_2")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !other {
		t.Fatal("different delivery should be claimed")
	}
}

func TestWebhookDeduperRelease(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	deduper, err := NewWebhookDeduper(rdb, time.Hour)
	if err != nil {
		t.Fatalf("NewWebhookDeduper() error = %v", err)
	}

	if _, err := deduper.Claim(context.Background(), "msg_1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if err := deduper.Release(context.Background(), "msg_1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	claimed, err := deduper.Claim(context.Background(), "msg_1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !claimed {
		t.Fatal("released delivery should be claimable again")
	}
}

func TestWebhookDeduperKeyExpires(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	deduper, err := NewWebhookDeduper(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewWebhookDeduper() error = %v", err)
	}

	if _, err := deduper.Claim(context.Background(), "msg_1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if ttl := mr.TTL(dedupeKeyPrefix + "msg_1"); ttl != time.Minute {
		t.Fatalf("ttl = %s, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)

	claimed, err := deduper.Claim(context.Background(), "msg_1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !claimed {
		t.Fatal("expired delivery should be claimable again")
	}
}

func TestWebhookDeduperRejectsEmptyID(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	deduper, err := NewWebhookDeduper(rdb, 0)
	if err != nil {
		t.Fatalf("NewWebhookDeduper() error = %v", err)
	}
	if _, err := deduper.Claim(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty delivery id")
	}
}

func TestNewWebhookDeduperRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookDeduper(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
