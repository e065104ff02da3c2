package service

import (
	"time"

	"github.com/holiman/uint256"

	"hive-staking/internal/model"
)

// PoolStatus is a snapshot of the reward pool.
type PoolStatus struct {
	Available            *uint256.Int
	LastDistributionTime time.Time
	UntilNext            time.Duration
	Policy               string
	Stakers              int
	Stakes               int
}

// GetStakingInfo returns a summary of every stake of staker, in index order.
// An unknown staker has no stakes.
func (s *StakingService) GetStakingInfo(staker string) []model.StakeSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.ledger.Account(staker)
	if !ok {
		return []model.StakeSummary{}
	}
	out := make([]model.StakeSummary, len(acc.Stakes))
	for i, rec := range acc.Stakes {
		out[i] = model.Summarize(i, rec)
	}
	return out
}

// GetTotalClaimed returns the lifetime amount claimed by staker.
func (s *StakingService) GetTotalClaimed(staker string) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.ledger.Account(staker)
	if !ok {
		return new(uint256.Int)
	}
	return acc.TotalRewardsClaimed
}

// GetAvailableReward returns the reward pool balance.
func (s *StakingService) GetAvailableReward() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.pool.TotalAvailable)
}

// GetLastDistributionTime returns when rewards were last distributed, or
// when the pool was created if they never were.
func (s *StakingService) GetLastDistributionTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.LastDistributionTime
}

// GetTimeUntilNextDistribution returns how long until the distribution
// interval elapses, zero once it has.
func (s *StakingService) GetTimeUntilNextDistribution() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.untilNext()
}

func (s *StakingService) untilNext() time.Duration {
	remaining := s.pool.LastDistributionTime.Add(s.interval).Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetFundingHistory returns every funding record, oldest first.
func (s *StakingService) GetFundingHistory() []model.FundingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Clone().FundingHistory
}

// FailedTransfers returns every outbound transfer that failed after its
// ledger mutation was committed, oldest first.
func (s *StakingService) FailedTransfers() []model.TransferFailure {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.TransferFailure, len(s.failures))
	for i, f := range s.failures {
		out[i] = f.Clone()
	}
	return out
}

// GetPoolStatus returns the pool figures in one consistent snapshot.
func (s *StakingService) GetPoolStatus() PoolStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return PoolStatus{
		Available:            new(uint256.Int).Set(s.pool.TotalAvailable),
		LastDistributionTime: s.pool.LastDistributionTime,
		UntilNext:            s.untilNext(),
		Policy:               s.distributor.Policy().Name(),
		Stakers:              len(s.ledger.Stakers()),
		Stakes:               s.ledger.StakeCount(),
	}
}
