package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockCmdable struct {
	values map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{values: map[string]string{}}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.values[key] = toString(value)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := m.values[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, exists := m.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	m.values[key] = toString(value)
	cmd.SetVal(true)
	return cmd
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return "1"
}

func TestSetNXHonorsExistingKeys(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "tf:lease:vendor:abc", "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first SetNX to succeed")
	}

	ok, err = client.SetNX(ctx, "tf:lease:vendor:abc", "owner-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second SetNX to be rejected")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}

	if got := client.IdempotencyKey("reconcile", "abc"); got != "tf:idempotency:reconcile:abc" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := client.LeaseKey("vendor", "v-1"); got != "tf:lease:vendor:v-1" {
		t.Fatalf("unexpected lease key %q", got)
	}
	if got := client.LockKey("payout-worker"); got != "tf:lock:payout-worker" {
		t.Fatalf("unexpected lock key %q", got)
	}
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	if _, err := client.Get(ctx, "tf:lease:vendor:missing"); err != redis.Nil {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}
