// Package lock provides per-reward mutual exclusion for claim preparation
// and event application. The contract is at most one in-flight mutating
// operation per (chain, asset, reward) key; the primitive is pluggable.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisclient "github.com/claimgate/claimgate/internal/infra/redis"
)

// Locker serializes operations on one reward key.
type Locker interface {
	// Acquire blocks until the key's lock is held or ctx is done, and
	// returns the release function.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key formats the canonical reward lock key.
func Key(chainID, assetID, rewardID int64) string {
	return fmt.Sprintf("claim:%d:%d:%d", chainID, assetID, rewardID)
}

// KeyedMutex is an in-process Locker for single-instance deployments.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	refs  map[string]int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		slots: make(map[string]chan struct{}),
		refs:  make(map[string]int),
	}
}

func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[key] = slot
	}
	m.refs[key]++
	m.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() {
			<-slot
			m.mu.Lock()
			m.refs[key]--
			if m.refs[key] == 0 {
				delete(m.slots, key)
				delete(m.refs, key)
			}
			m.mu.Unlock()
		}, nil
	case <-ctx.Done():
		m.mu.Lock()
		m.refs[key]--
		if m.refs[key] == 0 {
			delete(m.slots, key)
			delete(m.refs, key)
		}
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// RedisLocker is a Locker over Redis SetNX, safe across instances. Acquire
// polls until the lock frees or ctx is done; the TTL guards against a
// crashed holder wedging the key forever.
type RedisLocker struct {
	client    *redisclient.Client
	ttl       time.Duration
	pollEvery time.Duration
}

func NewRedisLocker(client *redisclient.Client) *RedisLocker {
	return &RedisLocker{
		client:    client,
		ttl:       30 * time.Second,
		pollEvery: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		ok, err := l.client.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = l.client.ReleaseLock(releaseCtx, key)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollEvery):
		}
	}
}
