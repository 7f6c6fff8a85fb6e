package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	ok, err := p.SetNX(context.Background(), "k", []byte("v"), time.Second)
	if err != nil || !ok {
		t.Fatalf("noop SetNX should succeed: %v %v", ok, err)
	}
}

func TestMemoryProviderTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewMemoryProvider()
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if err := p.Set(ctx, "status", []byte(`{"status":"healthy"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "status")
	if err != nil || string(got) != `{"status":"healthy"}` {
		t.Fatalf("unexpected get: %q %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := p.Get(ctx, "status"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryProviderSetNX(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	ok, _ := p.SetNX(ctx, "lock", []byte("a"), 0)
	if !ok {
		t.Fatalf("first SetNX must acquire")
	}
	ok, _ = p.SetNX(ctx, "lock", []byte("b"), 0)
	if ok {
		t.Fatalf("second SetNX must fail while held")
	}
	if err := p.Del(ctx, "lock"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, _ = p.SetNX(ctx, "lock", []byte("c"), 0)
	if !ok {
		t.Fatalf("SetNX must acquire after delete")
	}
}

func TestKeys(t *testing.T) {
	if got := StatusKey("mirador:resilience:", "abc"); got != "mirador:resilience:abc:status" {
		t.Fatalf("unexpected status key %s", got)
	}
	if got := RetrainLockKey("", "abc"); got != "abc:retrain-lock" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
