// Package vendorlease serializes money-mutating work per vendor. Every
// promotion sweep, payout run, and manual reconciliation must hold the
// vendor's lease before touching that vendor's ledger; independent
// vendors proceed concurrently.
package vendorlease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

// ErrHeld is returned when another worker owns the vendor's lease. The
// caller should retry later; nothing has been mutated.
var ErrHeld = errors.New("vendor lease already held")

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LeaseKey(scope, id string) string
}

// Manager hands out expiring per-vendor leases backed by Redis SETNX.
// The TTL bounds how long a crashed worker can block a vendor.
type Manager struct {
	store redisStore
	ttl   time.Duration
}

// NewManager constructs a lease manager.
func NewManager(store redisStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("redis store required for vendor leases")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Lease is one acquired per-vendor lease.
type Lease struct {
	store redisStore
	key   string
	owner string
}

// Acquire takes the vendor's lease or fails with ErrHeld.
func (m *Manager) Acquire(ctx context.Context, vendorID uuid.UUID) (*Lease, error) {
	if vendorID == uuid.Nil {
		return nil, errors.New("vendor id required")
	}

	key := m.store.LeaseKey("vendor", vendorID.String())
	owner := uuid.NewString()

	ok, err := m.store.SetNX(ctx, key, owner, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire vendor lease: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return &Lease{store: m.store, key: key, owner: owner}, nil
}

// Release frees the lease only while this worker still owns it; an
// expired and re-acquired lease is left alone.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.owner == "" {
		return nil
	}

	value, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lease owner: %w", err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	l.owner = ""
	return nil
}
