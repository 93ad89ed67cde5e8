package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanLock is a best-effort advisory lock held for the duration of one
// mailbox scan. It only prevents a second concurrent scan from burning a
// redundant IMAP session; application claims stay correct without it.
type ScanLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewScanLock builds a lock around the given key.
func NewScanLock(client *redis.Client, key string, ttl time.Duration) *ScanLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ScanLock{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock. It returns false when another holder
// owns it. A nil client (redis disabled) always acquires.
func (l *ScanLock) Acquire(ctx context.Context, runID string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, l.key, runID, l.ttl).Result()
}

// Release drops the lock if this run still owns it.
func (l *ScanLock) Release(ctx context.Context, runID string) error {
	if l == nil || l.client == nil {
		return nil
	}
	current, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current != runID {
		return nil
	}
	return l.client.Del(ctx, l.key).Err()
}
