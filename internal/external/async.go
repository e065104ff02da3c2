package external

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hive-staking/internal/callback"
)

// ErrClosed is returned by Describe after Close.
var ErrClosed = errors.New("registry closed")

// Describer looks items up in the registry.
type Describer interface {
	DescribeItem(ctx context.Context, itemID string) (owner string, metadata []byte, err error)
}

// ReplyHandler consumes a registry reply.
type ReplyHandler func(ctx context.Context, reply callback.Reply) error

// AsyncRegistry turns synchronous describe lookups into callbacks. Every
// accepted Describe delivers exactly one reply to the handler, from its own
// goroutine.
type AsyncRegistry struct {
	describer Describer
	timeout   time.Duration

	mu      sync.Mutex
	handler ReplyHandler
	closed  bool
	ready   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAsyncRegistry wraps describer. Each lookup is bounded by timeout.
func NewAsyncRegistry(describer Describer, timeout time.Duration) *AsyncRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncRegistry{
		describer: describer,
		timeout:   timeout,
		ready:     make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetHandler installs the reply consumer. Lookups issued earlier wait for it.
func (a *AsyncRegistry) SetHandler(h ReplyHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handler == nil {
		a.handler = h
		close(a.ready)
	}
}

// Describe schedules a lookup for the continuation's current item. The
// request context only bounds scheduling; the lookup outlives it.
func (a *AsyncRegistry) Describe(ctx context.Context, cont callback.Continuation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go a.lookup(cont)
	return nil
}

func (a *AsyncRegistry) lookup(cont callback.Continuation) {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	owner, metadata, err := a.describer.DescribeItem(ctx, cont.ItemID())
	cancel()

	result := callback.Result{OK: err == nil, Owner: owner, Metadata: metadata}
	if err != nil {
		result.Error = err.Error()
		log.Warn().
			Str("request_id", cont.RequestID.String()).
			Str("item", cont.ItemID()).
			Err(err).
			Msg("Registry lookup failed")
	}

	if !a.waitHandler() {
		log.Warn().
			Str("request_id", cont.RequestID.String()).
			Msg("Registry closed before a reply handler was set")
		return
	}

	// Delivery is not tied to a.ctx so a reply that arrives during shutdown
	// can still be committed.
	hctx, hcancel := context.WithTimeout(context.Background(), a.timeout)
	defer hcancel()

	reply := callback.Reply{Continuation: cont, Results: []callback.Result{result}}
	if err := a.handler(hctx, reply); err != nil {
		log.Debug().
			Str("request_id", cont.RequestID.String()).
			Err(err).
			Msg("Reply handler returned an error")
	}
}

// waitHandler blocks until a handler is set or the registry is closed.
func (a *AsyncRegistry) waitHandler() bool {
	select {
	case <-a.ready:
		return true
	default:
	}
	select {
	case <-a.ready:
		return true
	case <-a.ctx.Done():
		return false
	}
}

// Close stops accepting lookups, cancels the ones in flight and waits for
// their replies to be delivered.
func (a *AsyncRegistry) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}
