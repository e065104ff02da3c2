// Package lock provides keyed mutexes used to serialize the chat commands
// of one staker.
package lock

import (
	"context"
	"sync"
	"time"
)

// KeyLock hands out one mutex per key.
type KeyLock struct {
	locks sync.Map // map[string]*sync.Mutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

func (kl *KeyLock) getLock(key string) *sync.Mutex {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := kl.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// unlock releases the lock for key. The lock may be released by a different
// goroutine than the one that acquired it.
func (kl *KeyLock) unlock(key string) {
	if v, ok := kl.locks.Load(key); ok {
		v.(*sync.Mutex).Unlock()
	}
}

// lockWithTimeout attempts to acquire the lock within timeout and reports
// whether it was acquired.
func (kl *KeyLock) lockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	mu := kl.getLock(key)

	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiter still acquires eventually; hand the lock straight back.
		go func() {
			<-done
			mu.Unlock()
		}()
		return false
	}
}

// WithLockContext executes fn while holding the lock for key, giving up
// after timeout or when ctx is done.
func (kl *KeyLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !kl.lockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer kl.unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
