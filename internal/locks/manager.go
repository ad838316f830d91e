// Package locks provides distributed locking over Redis using the Redlock
// algorithm from go-redsync/redsync/v4. The sweep uses it so only one
// instance walks the unfired triggers at a time; trigger firing itself does
// not need it because the storage layer's claim is already atomic.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/redis"
)

// Lock is a held distributed lock
type Lock interface {
	// Key returns the lock's identifier
	Key() string
	// Release releases the lock and stops its renewal
	Release(ctx context.Context) error
	// IsHeld reports whether this instance still holds the lock
	IsHeld() bool
}

// Manager acquires distributed locks. Held locks renew themselves at a
// third of their expiry until released, so a slow critical section does not
// silently lose its lock.
type Manager struct {
	redsync *redsync.Redsync

	mu   sync.Mutex
	held map[string]*managedLock
}

// NewManager creates a lock manager on top of the given Redis client
func NewManager(redisClient *redis.Client) (*Manager, error) {
	if redisClient == nil {
		return nil, apperrors.ConfigError("redis client is required")
	}

	pool := goredis.NewPool(redisClient.GetGoRedisClient())
	return &Manager{
		redsync: redsync.New(pool),
		held:    make(map[string]*managedLock),
	}, nil
}

// AcquireLock attempts to take the named lock. It fails fast on contention
// rather than retrying; callers that can wait retry on their own schedule.
func (m *Manager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	mutex := m.redsync.NewMutex(
		fmt.Sprintf("lock:%s", key),
		redsync.WithExpiry(expiration),
		redsync.WithTries(1),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, apperrors.ConflictError("lock is held elsewhere").
			WithContext("key", key)
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &managedLock{
		mutex:      mutex,
		key:        key,
		expiration: expiration,
		ctx:        lockCtx,
		cancel:     cancel,
		manager:    m,
	}

	m.mu.Lock()
	m.held[key] = lock
	m.mu.Unlock()

	go m.renew(lock)
	return lock, nil
}

// AcquireSweepLock takes the cluster-wide sweep lock
func (m *Manager) AcquireSweepLock(ctx context.Context) (Lock, error) {
	return m.AcquireLock(ctx, "sweep", 30*time.Second)
}

// renew extends the lock periodically until it is released or lost
func (m *Manager) renew(lock *managedLock) {
	interval := lock.expiration / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()
			if err != nil || !ok {
				m.release(lock)
				return
			}
		}
	}
}

func (m *Manager) release(lock *managedLock) {
	m.mu.Lock()
	delete(m.held, lock.key)
	m.mu.Unlock()

	lock.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = lock.mutex.UnlockContext(ctx)
}

// Close releases every lock this manager still holds
func (m *Manager) Close() error {
	m.mu.Lock()
	locks := make([]*managedLock, 0, len(m.held))
	for _, lock := range m.held {
		locks = append(locks, lock)
	}
	m.held = make(map[string]*managedLock)
	m.mu.Unlock()

	for _, lock := range locks {
		lock.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = lock.mutex.UnlockContext(ctx)
		cancel()
	}
	return nil
}

type managedLock struct {
	mutex      *redsync.Mutex
	key        string
	expiration time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	manager    *Manager
}

func (l *managedLock) Key() string {
	return l.key
}

func (l *managedLock) Release(ctx context.Context) error {
	l.manager.release(l)
	return nil
}

func (l *managedLock) IsHeld() bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
		return true
	}
}
