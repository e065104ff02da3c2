package service

import (
	"sort"

	"github.com/holiman/uint256"

	"hive-staking/internal/ledger"
)

// StakerRank is one leaderboard row.
type StakerRank struct {
	Staker       string
	Weight       uint64
	Stakes       int
	TotalClaimed *uint256.Int
}

// GetTopStakers returns up to limit stakers ordered by staked weight, then by
// lifetime claims, then by identity.
func (s *StakingService) GetTopStakers(limit int) []StakerRank {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rankStakers(s.ledger, limit)
}

func rankStakers(l *ledger.Ledger, limit int) []StakerRank {
	stakers := l.Stakers()
	ranks := make([]StakerRank, 0, len(stakers))
	for _, staker := range stakers {
		acc, ok := l.Account(staker)
		if !ok {
			continue
		}
		r := StakerRank{
			Staker:       staker,
			Stakes:       len(acc.Stakes),
			TotalClaimed: new(uint256.Int).Set(acc.TotalRewardsClaimed),
		}
		for _, rec := range acc.Stakes {
			r.Weight += rec.Weight
		}
		ranks = append(ranks, r)
	}

	sort.Slice(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if c := a.TotalClaimed.Cmp(b.TotalClaimed); c != 0 {
			return c > 0
		}
		return a.Staker < b.Staker
	})

	if limit >= 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}
