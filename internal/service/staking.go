// Package service provides the staking engine: stake verification, reward
// distribution, claims, unstakes, funding and reporting.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"hive-staking/internal/callback"
	"hive-staking/internal/item"
	"hive-staking/internal/ledger"
	"hive-staking/internal/metrics"
	"hive-staking/internal/model"
	"hive-staking/internal/reward"
)

// Errors returned by the engine, re-exported for transports.
var (
	ErrUnauthorized        = model.ErrUnauthorized
	ErrNotFound            = model.ErrNotFound
	ErrIndexOutOfRange     = model.ErrIndexOutOfRange
	ErrInvalidInput        = model.ErrInvalidInput
	ErrLockupActive        = model.ErrLockupActive
	ErrNothingToClaim      = model.ErrNothingToClaim
	ErrNothingToDistribute = model.ErrNothingToDistribute
	ErrExternalCallFailed  = model.ErrExternalCallFailed
	ErrOwnershipMismatch   = model.ErrOwnershipMismatch
	ErrInsufficientPool    = model.ErrInsufficientPool
	ErrDistributionNotDue  = model.ErrDistributionNotDue
	ErrItemAlreadyStaked   = model.ErrItemAlreadyStaked
	ErrUnknownRequest      = model.ErrUnknownRequest
)

// Store persists committed changesets.
type Store interface {
	Load(ctx context.Context) (*model.State, error)
	Commit(ctx context.Context, cs *model.Changeset) error
}

// TokenLedger pays out fungible rewards.
type TokenLedger interface {
	TransferTokens(ctx context.Context, to string, amount *uint256.Int) error
}

// ItemTransfers returns staked items to their staker.
type ItemTransfers interface {
	TransferItem(ctx context.Context, itemID, to string) error
	BatchTransferItems(ctx context.Context, itemIDs []string, to string) error
}

// Options configures a StakingService.
type Options struct {
	// Owner is the only identity allowed to distribute and fund.
	Owner string
	// TokenLedger and Registry are the identities funding and item
	// notifications must originate from.
	TokenLedger string
	Registry    string
	Lockup      time.Duration
	// DistributionInterval drives the time until the next distribution.
	DistributionInterval time.Duration
	Policy               reward.Policy
	Weights              item.WeightTable
	Now                  func() time.Time
}

// StakingService is the staking engine. Every operation runs to completion
// under one mutex, except for outbound transfers, which are issued after the
// ledger mutation is committed and the mutex released.
type StakingService struct {
	store       Store
	coordinator *callback.Coordinator
	distributor *reward.Distributor
	tokens      TokenLedger
	items       ItemTransfers
	metrics     *metrics.Metrics

	owner       string
	tokenLedger string
	registry    string
	interval    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	ledger   *ledger.Ledger
	pool     model.RewardPool
	failures []model.TransferFailure

	// verifying holds item ids of stake attempts awaiting the registry.
	verifying map[string]struct{}
}

// NewStakingService loads the persisted state and creates the engine.
func NewStakingService(
	ctx context.Context,
	store Store,
	registry callback.Registry,
	tokens TokenLedger,
	items ItemTransfers,
	m *metrics.Metrics,
	opts Options,
) (*StakingService, error) {
	if opts.Owner == "" {
		return nil, fmt.Errorf("owner identity is required")
	}
	if opts.Policy == nil {
		opts.Policy = reward.AccrualPolicy{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load staking state: %w", err)
	}
	pool := state.Pool.Clone()
	if pool.LastDistributionTime.IsZero() {
		pool.LastDistributionTime = opts.Now()
	}

	s := &StakingService{
		store:       store,
		coordinator: callback.NewCoordinator(registry),
		distributor: reward.NewDistributor(opts.Policy, opts.Weights),
		tokens:      tokens,
		items:       items,
		metrics:     m,
		owner:       opts.Owner,
		tokenLedger: opts.TokenLedger,
		registry:    opts.Registry,
		interval:    opts.DistributionInterval,
		now:         opts.Now,
		ledger:      ledger.Restore(opts.Lockup, state.Accounts),
		pool:        pool,
		verifying:   make(map[string]struct{}),
		failures:    state.Failures,
	}
	m.PoolAvailable(pool.TotalAvailable)

	log.Info().
		Str("policy", opts.Policy.Name()).
		Int("stakers", len(s.ledger.Stakers())).
		Int("stakes", s.ledger.StakeCount()).
		Str("pool", pool.TotalAvailable.Dec()).
		Msg("Staking engine loaded")

	return s, nil
}

// IsOwner reports whether id is the designated owner.
func (s *StakingService) IsOwner(id string) bool {
	return id == s.owner
}

// Stake starts verifying itemIDs for staker. The stake is opened later, when
// the registry replies for the last item. The returned ID identifies the
// first describe request.
func (s *StakingService) Stake(ctx context.Context, staker string, itemIDs []string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := callback.Validate(staker, itemIDs); err != nil {
		return uuid.Nil, err
	}
	for _, id := range itemIDs {
		if s.ledger.IsStaked(id) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrItemAlreadyStaked, id)
		}
	}
	if !s.reserve(itemIDs) {
		return uuid.Nil, fmt.Errorf("%w: verification already in flight", ErrItemAlreadyStaked)
	}

	cont, err := s.coordinator.Begin(ctx, staker, itemIDs, s.now())
	if err != nil {
		s.release(itemIDs)
		if errors.Is(err, ErrExternalCallFailed) {
			s.metrics.ExternalFailure(metrics.CallDescribe)
		}
		return uuid.Nil, err
	}
	s.metrics.Callback(metrics.OutcomeRequested)

	log.Info().
		Str("request_id", cont.RequestID.String()).
		Str("staker", staker).
		Strs("items", itemIDs).
		Msg("Stake verification requested")

	return cont.RequestID, nil
}

// Resume delivers a registry reply. When the last item of an attempt is
// verified the stake is opened; a rejection aborts the whole attempt.
func (s *StakingService) Resume(ctx context.Context, reply callback.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.coordinator.Resume(ctx, reply)
	if errors.Is(err, ErrUnknownRequest) {
		log.Warn().
			Str("request_id", reply.Continuation.RequestID.String()).
			Msg("Dropping reply for unknown request")
		return err
	}

	cont := out.Continuation
	switch out.State {
	case callback.StateRequested:
		s.metrics.Callback(metrics.OutcomeRequested)
		return nil
	case callback.StateRejected:
		s.release(cont.ItemIDs)
		s.metrics.Callback(metrics.OutcomeRejected)
		if errors.Is(err, ErrExternalCallFailed) {
			s.metrics.ExternalFailure(metrics.CallDescribe)
		}
		return err
	}

	defer s.release(cont.ItemIDs)
	s.metrics.Callback(metrics.OutcomeVerified)
	_, err = s.openStake(ctx, cont.Staker, cont.ItemIDs, cont.Types, cont.StartTime)
	return err
}

// ReceiveItem opens a single-item stake for an item the registry has already
// transferred in. The transfer proves ownership, so no describe call is made.
func (s *StakingService) ReceiveItem(ctx context.Context, origin, sender, itemID string, metadata []byte) (int, error) {
	if origin != s.registry {
		return 0, fmt.Errorf("%w: items must arrive from the registry", ErrUnauthorized)
	}
	if err := callback.Validate(sender, []string{itemID}); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.verifying[itemID]; busy {
		return 0, fmt.Errorf("%w: verification already in flight", ErrItemAlreadyStaked)
	}

	types := map[string]model.ItemType{itemID: item.Classify(metadata)}
	return s.openStake(ctx, sender, []string{itemID}, types, s.now())
}

// reserve marks itemIDs as under verification, all of them or none.
// Callers hold s.mu.
func (s *StakingService) reserve(itemIDs []string) bool {
	for _, id := range itemIDs {
		if _, busy := s.verifying[id]; busy {
			return false
		}
	}
	for _, id := range itemIDs {
		s.verifying[id] = struct{}{}
	}
	return true
}

func (s *StakingService) release(itemIDs []string) {
	for _, id := range itemIDs {
		delete(s.verifying, id)
	}
}

func (s *StakingService) openStake(ctx context.Context, staker string, itemIDs []string, types map[string]model.ItemType, start time.Time) (int, error) {
	for _, id := range itemIDs {
		if s.ledger.IsStaked(id) {
			return 0, fmt.Errorf("%w: %s", ErrItemAlreadyStaked, id)
		}
	}

	b := s.ledger.Begin()
	index, err := b.OpenStake(staker, itemIDs, types, s.distributor.Weights().StakeWeight(types), start)
	if err != nil {
		return 0, err
	}
	if err := s.commit(ctx, &model.Changeset{Accounts: b.Accounts()}); err != nil {
		return 0, err
	}
	s.ledger.Apply(b)
	s.metrics.Stake()

	log.Info().
		Str("staker", staker).
		Int("stake_index", index).
		Strs("items", itemIDs).
		Msg("Stake opened")

	return index, nil
}

// Distribute runs one distribution pass. Only the owner may call it.
// amount is ignored by the monthly policy. The pool is debited by what was
// actually credited, so the rounding remainder stays available.
func (s *StakingService) Distribute(ctx context.Context, caller string, amount *uint256.Int) (*reward.Plan, error) {
	if !s.IsOwner(caller) {
		return nil, fmt.Errorf("%w: only the owner can distribute rewards", ErrUnauthorized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	plan, err := s.distributor.Plan(s.ledger, s.pool, amount, now)
	if err != nil {
		return nil, err
	}

	b := s.ledger.Begin()
	if err := plan.Apply(b); err != nil {
		return nil, err
	}
	totals := model.RewardPool{
		TotalAvailable:       new(uint256.Int).Set(s.pool.TotalAvailable),
		LastDistributionTime: now,
	}
	if s.distributor.Policy().DebitsPool() {
		totals.TotalAvailable.Sub(totals.TotalAvailable, plan.Distributed)
	}

	if err := s.commit(ctx, &model.Changeset{Accounts: b.Accounts(), Pool: &totals}); err != nil {
		return nil, err
	}
	s.ledger.Apply(b)
	s.pool.TotalAvailable = totals.TotalAvailable
	s.pool.LastDistributionTime = now
	s.metrics.Distribution()
	s.metrics.PoolAvailable(s.pool.TotalAvailable)

	log.Info().
		Str("policy", s.distributor.Policy().Name()).
		Str("amount", plan.Amount.Dec()).
		Str("distributed", plan.Distributed.Dec()).
		Str("remainder", plan.Remainder().Dec()).
		Uint64("total_weight", plan.TotalWeight).
		Int("stakes", len(plan.Credits)).
		Msg("Rewards distributed")

	return plan, nil
}

// Claim pays out the accrued reward of one stake. The ledger is committed
// before the transfer is issued; if the transfer fails the claimed amount is
// returned together with an error wrapping ErrExternalCallFailed, and the
// failure is recorded instead of reversed.
func (s *StakingService) Claim(ctx context.Context, staker string, index int) (*uint256.Int, error) {
	amount, err := s.commitClaim(ctx, staker, index)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.TransferTokens(ctx, staker, amount); err != nil {
		s.metrics.ExternalFailure(metrics.CallTransferTokens)
		s.recordFailure(ctx, model.TransferFailure{
			Kind:      model.TransferTokens,
			Recipient: staker,
			Amount:    new(uint256.Int).Set(amount),
			Reason:    err.Error(),
		})
		return amount, fmt.Errorf("%w: transfer %s to %s: %v", ErrExternalCallFailed, amount.Dec(), staker, err)
	}
	return amount, nil
}

func (s *StakingService) commitClaim(ctx context.Context, staker string, index int) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.ledger.Begin()
	rec, err := b.GetStake(staker, index)
	if err != nil {
		return nil, err
	}
	if rec.AccruedReward.IsZero() {
		return nil, ErrNothingToClaim
	}

	amount := new(uint256.Int).Set(rec.AccruedReward)
	rec.AccruedReward = new(uint256.Int)
	if s.distributor.Policy().MarksClaimed() {
		rec.Claimed = true
	}
	if err := b.ReplaceStake(staker, index, rec); err != nil {
		return nil, err
	}
	if err := b.AddClaimed(staker, amount); err != nil {
		return nil, err
	}

	if err := s.commit(ctx, &model.Changeset{Accounts: b.Accounts()}); err != nil {
		return nil, err
	}
	s.ledger.Apply(b)
	s.metrics.Claim()

	log.Info().
		Str("staker", staker).
		Int("stake_index", index).
		Str("amount", amount.Dec()).
		Msg("Reward claimed")

	return amount, nil
}

// Unstake removes a stake whose lockup has elapsed and returns its items.
// Indices of the staker's other stakes may change. Unclaimed reward on the
// stake is forfeited. Transfer failures are handled as in Claim.
func (s *StakingService) Unstake(ctx context.Context, staker string, index int) ([]string, error) {
	itemIDs, err := s.commitUnstake(ctx, staker, index)
	if err != nil {
		return nil, err
	}

	if len(itemIDs) == 1 {
		err = s.items.TransferItem(ctx, itemIDs[0], staker)
	} else {
		err = s.items.BatchTransferItems(ctx, itemIDs, staker)
	}
	if err != nil {
		s.metrics.ExternalFailure(metrics.CallTransferItems)
		s.recordFailure(ctx, model.TransferFailure{
			Kind:      model.TransferItems,
			Recipient: staker,
			ItemIDs:   append([]string(nil), itemIDs...),
			Reason:    err.Error(),
		})
		return itemIDs, fmt.Errorf("%w: return items to %s: %v", ErrExternalCallFailed, staker, err)
	}
	return itemIDs, nil
}

func (s *StakingService) commitUnstake(ctx context.Context, staker string, index int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := s.ledger.Begin()
	rec, err := b.GetStake(staker, index)
	if err != nil {
		return nil, err
	}
	if !rec.Unlocked(now) {
		return nil, fmt.Errorf("%w: unlocks at %s", ErrLockupActive, rec.UnlocksAt().Format(time.RFC3339))
	}
	if _, err := b.RemoveStake(staker, index); err != nil {
		return nil, err
	}

	if err := s.commit(ctx, &model.Changeset{Accounts: b.Accounts()}); err != nil {
		return nil, err
	}
	s.ledger.Apply(b)
	s.metrics.Unstake()

	ev := log.Info()
	if !rec.AccruedReward.IsZero() {
		ev = log.Warn().Str("forfeited", rec.AccruedReward.Dec())
	}
	ev.Str("staker", staker).
		Int("stake_index", index).
		Strs("items", rec.ItemIDs).
		Msg("Stake removed")

	return rec.ItemIDs, nil
}

// Fund handles a token ledger notification. origin is the identity the
// notification actually came from, sender the account that sent the tokens.
func (s *StakingService) Fund(ctx context.Context, origin, sender string, amount *uint256.Int, memo string) error {
	if origin != s.tokenLedger {
		return fmt.Errorf("%w: funding must arrive from the token ledger", ErrUnauthorized)
	}
	if !s.IsOwner(sender) {
		return fmt.Errorf("%w: only the owner can fund the reward pool", ErrUnauthorized)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: funding amount must be greater than zero", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, overflow := new(uint256.Int).AddOverflow(s.pool.TotalAvailable, amount)
	if overflow {
		return fmt.Errorf("%w: pool balance would overflow", ErrInvalidInput)
	}
	record := model.FundingRecord{
		Amount:    new(uint256.Int).Set(amount),
		Sender:    sender,
		Memo:      memo,
		Timestamp: s.now(),
	}
	totals := model.RewardPool{TotalAvailable: total, LastDistributionTime: s.pool.LastDistributionTime}

	if err := s.commit(ctx, &model.Changeset{Pool: &totals, Funding: []model.FundingRecord{record}}); err != nil {
		return err
	}
	s.pool.TotalAvailable = total
	s.pool.FundingHistory = append(s.pool.FundingHistory, record)
	s.metrics.PoolAvailable(total)

	log.Info().
		Str("origin", origin).
		Str("sender", sender).
		Str("amount", amount.Dec()).
		Str("memo", memo).
		Str("pool", total.Dec()).
		Msg("Reward pool funded")

	return nil
}

func (s *StakingService) commit(ctx context.Context, cs *model.Changeset) error {
	if err := s.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("failed to persist changes: %w", err)
	}
	return nil
}

// recordFailure appends to the reconciliation log. It never fails the
// caller; a store error is logged.
func (s *StakingService) recordFailure(ctx context.Context, f model.TransferFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.CreatedAt = s.now()
	ev := log.Error().
		Str("kind", string(f.Kind)).
		Str("recipient", f.Recipient).
		Strs("items", f.ItemIDs).
		Str("reason", f.Reason)
	if f.Amount != nil {
		ev = ev.Str("amount", f.Amount.Dec())
	}
	ev.Msg("Outbound transfer failed after commit")

	if err := s.commit(ctx, &model.Changeset{Failures: []model.TransferFailure{f}}); err != nil {
		log.Error().Err(err).Msg("Failed to record transfer failure")
	}
	s.failures = append(s.failures, f)
}
