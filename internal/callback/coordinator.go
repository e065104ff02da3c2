// Package callback verifies staked items against the item registry before a
// stake is accepted.
//
// A stake attempt becomes a Continuation that travels with each describe
// request and comes back inside the Reply. The coordinator itself only keeps
// the set of request IDs it is waiting on, so concurrent attempts never share
// mutable state and a reply cannot be replayed.
package callback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hive-staking/internal/item"
	"hive-staking/internal/model"
)

// State is the verification state of a stake attempt.
type State int

const (
	// StateRequested means a describe call is outstanding.
	StateRequested State = iota
	// StateVerified means every item is owned by the staker and classified.
	StateVerified
	// StateRejected means the attempt was aborted; the caller starts over.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Continuation carries everything needed to resume a stake attempt.
type Continuation struct {
	RequestID uuid.UUID
	Staker    string
	ItemIDs   []string
	// Cursor indexes the item the outstanding describe call is about.
	Cursor int
	// Types holds the classification of every item before Cursor.
	Types     map[string]model.ItemType
	StartTime time.Time
}

// ItemID returns the item under verification.
func (c Continuation) ItemID() string {
	return c.ItemIDs[c.Cursor]
}

func (c Continuation) next() Continuation {
	out := c
	out.RequestID = uuid.New()
	out.Cursor = c.Cursor + 1
	out.Types = make(map[string]model.ItemType, len(c.Types))
	for id, t := range c.Types {
		out.Types[id] = t
	}
	return out
}

// Result is one registry answer to a describe call.
type Result struct {
	OK       bool
	Owner    string
	Metadata []byte
	Error    string
}

// Reply is the registry's answer together with the continuation it was
// issued for. Exactly one Result is expected.
type Reply struct {
	Continuation Continuation
	Results      []Result
}

// Registry issues asynchronous describe calls. The reply is delivered later
// by whoever implements it, outside of Describe.
type Registry interface {
	Describe(ctx context.Context, cont Continuation) error
}

// Outcome is the state a reply moved a stake attempt to.
type Outcome struct {
	State        State
	Continuation Continuation
}

// Coordinator drives stake attempts through the verification state machine.
type Coordinator struct {
	registry Registry

	mu       sync.Mutex
	inflight map[uuid.UUID]ticket
}

// ticket is what a reply must match to be accepted for its request ID.
type ticket struct {
	cursor int
	staker string
	item   string
}

// NewCoordinator creates a coordinator that issues calls through registry.
func NewCoordinator(registry Registry) *Coordinator {
	return &Coordinator{
		registry: registry,
		inflight: make(map[uuid.UUID]ticket),
	}
}

// Begin starts verifying itemIDs on behalf of staker and issues the first
// describe call.
func (c *Coordinator) Begin(ctx context.Context, staker string, itemIDs []string, now time.Time) (Continuation, error) {
	if err := Validate(staker, itemIDs); err != nil {
		return Continuation{}, err
	}

	cont := Continuation{
		RequestID: uuid.New(),
		Staker:    staker,
		ItemIDs:   append([]string(nil), itemIDs...),
		Types:     make(map[string]model.ItemType, len(itemIDs)),
		StartTime: now,
	}
	if err := c.issue(ctx, cont); err != nil {
		return Continuation{}, err
	}
	return cont, nil
}

// Validate checks the structure of a stake request: a staker and a non-empty
// set of distinct, non-empty item ids.
func Validate(staker string, itemIDs []string) error {
	if staker == "" {
		return fmt.Errorf("%w: empty staker", model.ErrInvalidInput)
	}
	if len(itemIDs) == 0 {
		return fmt.Errorf("%w: empty item set", model.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if id == "" {
			return fmt.Errorf("%w: empty item id", model.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: item %s listed twice", model.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Resume consumes a reply. A reply for a request that is not in flight is
// rejected with ErrUnknownRequest and changes nothing. Otherwise the request
// is retired and the attempt either moves on to the next item, is verified,
// or is rejected with the returned error.
func (c *Coordinator) Resume(ctx context.Context, reply Reply) (Outcome, error) {
	cont := reply.Continuation
	if !c.retire(cont) {
		return Outcome{State: StateRejected, Continuation: cont}, fmt.Errorf("%w: %s", model.ErrUnknownRequest, cont.RequestID)
	}

	reject := func(err error) (Outcome, error) {
		log.Warn().
			Str("request_id", cont.RequestID.String()).
			Str("staker", cont.Staker).
			Str("item", cont.ItemID()).
			Err(err).
			Msg("Stake verification rejected")
		return Outcome{State: StateRejected, Continuation: cont}, err
	}

	if len(reply.Results) != 1 {
		return reject(fmt.Errorf("%w: expected one registry result, got %d", model.ErrExternalCallFailed, len(reply.Results)))
	}
	res := reply.Results[0]
	if !res.OK {
		return reject(fmt.Errorf("%w: describe %s: %s", model.ErrExternalCallFailed, cont.ItemID(), res.Error))
	}
	if res.Owner != cont.Staker {
		return reject(fmt.Errorf("%w: item %s is owned by %q", model.ErrOwnershipMismatch, cont.ItemID(), res.Owner))
	}

	cont.Types = copyTypes(cont.Types)
	cont.Types[cont.ItemID()] = item.Classify(res.Metadata)

	if cont.Cursor+1 < len(cont.ItemIDs) {
		next := cont.next()
		if err := c.issue(ctx, next); err != nil {
			return reject(err)
		}
		return Outcome{State: StateRequested, Continuation: next}, nil
	}
	return Outcome{State: StateVerified, Continuation: cont}, nil
}

// Pending returns the number of describe calls awaiting a reply.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Coordinator) issue(ctx context.Context, cont Continuation) error {
	c.mu.Lock()
	c.inflight[cont.RequestID] = ticket{cursor: cont.Cursor, staker: cont.Staker, item: cont.ItemID()}
	c.mu.Unlock()

	if err := c.registry.Describe(ctx, cont); err != nil {
		c.retire(cont)
		return fmt.Errorf("%w: describe %s: %v", model.ErrExternalCallFailed, cont.ItemID(), err)
	}
	return nil
}

// retire removes the request from the in-flight set and reports whether the
// continuation matches the one it was issued with.
func (c *Coordinator) retire(cont Continuation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.inflight[cont.RequestID]
	if !ok || cont.Cursor < 0 || cont.Cursor >= len(cont.ItemIDs) {
		return false
	}
	if t != (ticket{cursor: cont.Cursor, staker: cont.Staker, item: cont.ItemID()}) {
		return false
	}
	delete(c.inflight, cont.RequestID)
	return true
}

func copyTypes(types map[string]model.ItemType) map[string]model.ItemType {
	out := make(map[string]model.ItemType, len(types)+1)
	for id, t := range types {
		out[id] = t
	}
	return out
}
