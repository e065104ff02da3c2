package repository

import (
	"context"
	"sync"
	"time"

	"hive-staking/internal/model"
)

// MemoryStore keeps staking state in process memory. State is lost on exit.
type MemoryStore struct {
	mu    sync.Mutex
	state model.State
}

// NewMemoryStore creates an empty store whose distribution clock starts at now.
func NewMemoryStore(now time.Time) *MemoryStore {
	return &MemoryStore{
		state: model.State{
			Accounts: make(map[string]*model.StakerAccount),
			Pool:     model.NewRewardPool(now),
		},
	}
}

// Load returns a copy of the stored state.
func (s *MemoryStore) Load(_ context.Context) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &model.State{
		Accounts: make(map[string]*model.StakerAccount, len(s.state.Accounts)),
		Pool:     s.state.Pool.Clone(),
		Failures: cloneFailures(s.state.Failures),
	}
	for staker, acc := range s.state.Accounts {
		out.Accounts[staker] = acc.Clone()
	}
	return out, nil
}

// Commit applies a changeset.
func (s *MemoryStore) Commit(_ context.Context, cs *model.Changeset) error {
	if cs == nil || cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for staker, acc := range cs.Accounts {
		if acc == nil || (len(acc.Stakes) == 0 && acc.TotalRewardsClaimed.IsZero()) {
			delete(s.state.Accounts, staker)
			continue
		}
		s.state.Accounts[staker] = acc.Clone()
	}
	if cs.Pool != nil {
		p := cs.Pool.Clone()
		s.state.Pool.TotalAvailable = p.TotalAvailable
		s.state.Pool.LastDistributionTime = p.LastDistributionTime
	}
	for _, f := range cs.Funding {
		s.state.Pool.FundingHistory = append(s.state.Pool.FundingHistory, f.Clone())
	}
	s.state.Failures = append(s.state.Failures, cloneFailures(cs.Failures)...)
	return nil
}

func cloneFailures(in []model.TransferFailure) []model.TransferFailure {
	out := make([]model.TransferFailure, len(in))
	for i, f := range in {
		out[i] = f.Clone()
	}
	return out
}
