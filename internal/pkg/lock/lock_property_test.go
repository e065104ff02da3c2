package lock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestWithLockContextSerializesProperty checks that concurrent
// read-modify-write under WithLockContext ends with the sequential result.
func TestWithLockContextSerializesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")
		key := rapid.StringMatching(`[0-9]{1,10}`).Draw(t, "key")

		ops := make([]int64, numOps)
		expected := initial
		for i := range ops {
			ops[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += ops[i]
		}

		kl := NewKeyLock()
		value := initial

		var wg sync.WaitGroup
		errs := make(chan error, numOps)
		wg.Add(numOps)
		for _, amount := range ops {
			go func(amount int64) {
				defer wg.Done()
				errs <- kl.WithLockContext(context.Background(), key, 5*time.Second, func() error {
					value += amount
					return nil
				})
			}(amount)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if value != expected {
			t.Fatalf("expected %d, got %d", expected, value)
		}
	})
}

// TestIndependentKeysProperty checks that each key guards its own value.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		kl := NewKeyLock()
		values := make(map[string]*int, numKeys)
		for i := 0; i < numKeys; i++ {
			v := 0
			values[fmt.Sprintf("staker-%d", i)] = &v
		}

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for key, v := range values {
			for j := 0; j < opsPerKey; j++ {
				go func(key string, v *int) {
					defer wg.Done()
					_ = kl.WithLockContext(context.Background(), key, 5*time.Second, func() error {
						*v++
						return nil
					})
				}(key, v)
			}
		}
		wg.Wait()

		for key, v := range values {
			if *v != opsPerKey {
				t.Fatalf("%s: expected %d, got %d", key, opsPerKey, *v)
			}
		}
	})
}

func TestWithLockContext_Timeout(t *testing.T) {
	kl := NewKeyLock()
	require.True(t, kl.lockWithTimeout(context.Background(), "alice", time.Second))

	called := false
	err := kl.WithLockContext(context.Background(), "alice", 20*time.Millisecond, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)

	kl.unlock("alice")
	err = kl.WithLockContext(context.Background(), "alice", time.Second, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWithLockContext_Cancelled(t *testing.T) {
	kl := NewKeyLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := kl.WithLockContext(ctx, "alice", time.Second, func() error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	assert.Error(t, err)

	// The lock is usable afterwards whichever way the call gave up
	require.Eventually(t, func() bool {
		return kl.WithLockContext(context.Background(), "alice", 10*time.Millisecond, func() error { return nil }) == nil
	}, time.Second, 10*time.Millisecond)
}
