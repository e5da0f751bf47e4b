package cache

import (
	"context"
	"testing"
	"time"
)

func TestKeys(t *testing.T) {
	if BalanceKey("acc-1") != "aspire:balance:acc-1" {
		t.Fatalf("unexpected balance key: %s", BalanceKey("acc-1"))
	}
	if FeatureCostKey("cover_letter") != "aspire:cost:cover_letter" {
		t.Fatalf("unexpected cost key: %s", FeatureCostKey("cover_letter"))
	}
	if PaymentLockKey("order_1") != "aspire:lock:payment:order_1" {
		t.Fatalf("unexpected lock key: %s", PaymentLockKey("order_1"))
	}
}

func TestNopCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	if err := c.SetInt(ctx, "k", 5, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := c.GetInt(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNopLocker(t *testing.T) {
	var l Locker = NopLocker{}
	release, err := l.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := release(context.Background()); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
}
