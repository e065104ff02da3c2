// Package model defines the data models for the staking ledger.
package model

import (
	"time"

	"github.com/holiman/uint256"
)

// ItemType is the classified type of a staked item.
type ItemType string

// Item types, in descending reward weight.
const (
	ItemQueen  ItemType = "Queen"
	ItemWorker ItemType = "Worker"
	ItemDrone  ItemType = "Drone"
)

// ItemTypes returns all item types in display order.
func ItemTypes() []ItemType {
	return []ItemType{ItemQueen, ItemWorker, ItemDrone}
}

// StakeRecord is one bundle of items locked together.
// ItemIDs, StartTime and LockupDuration never change after creation.
type StakeRecord struct {
	ItemIDs        []string
	ItemTypes      map[string]ItemType
	Weight         uint64
	StartTime      time.Time
	LockupDuration time.Duration
	AccruedReward  *uint256.Int
	Claimed        bool
}

// UnlocksAt returns the earliest time the stake may be withdrawn.
func (r StakeRecord) UnlocksAt() time.Time {
	return r.StartTime.Add(r.LockupDuration)
}

// Unlocked reports whether the lockup has elapsed at now.
func (r StakeRecord) Unlocked(now time.Time) bool {
	return !now.Before(r.UnlocksAt())
}

// TypeCounts counts the items of each type in the stake.
func (r StakeRecord) TypeCounts() map[ItemType]int {
	counts := make(map[ItemType]int, 3)
	for _, t := range r.ItemTypes {
		counts[t]++
	}
	return counts
}

// Clone returns a deep copy of the record.
func (r StakeRecord) Clone() StakeRecord {
	out := r
	out.ItemIDs = append([]string(nil), r.ItemIDs...)
	out.ItemTypes = make(map[string]ItemType, len(r.ItemTypes))
	for id, t := range r.ItemTypes {
		out.ItemTypes[id] = t
	}
	out.AccruedReward = cloneAmount(r.AccruedReward)
	return out
}

// StakerAccount holds every stake of one staker.
// Stakes are addressed by index; indices are unstable across removals.
type StakerAccount struct {
	Staker              string
	Stakes              []StakeRecord
	TotalRewardsClaimed *uint256.Int
}

// NewStakerAccount creates an empty account.
func NewStakerAccount(staker string) *StakerAccount {
	return &StakerAccount{
		Staker:              staker,
		TotalRewardsClaimed: new(uint256.Int),
	}
}

// Clone returns a deep copy of the account.
func (a *StakerAccount) Clone() *StakerAccount {
	out := &StakerAccount{
		Staker:              a.Staker,
		Stakes:              make([]StakeRecord, len(a.Stakes)),
		TotalRewardsClaimed: cloneAmount(a.TotalRewardsClaimed),
	}
	for i, s := range a.Stakes {
		out.Stakes[i] = s.Clone()
	}
	return out
}

// FundingRecord is one entry of the append-only funding log.
type FundingRecord struct {
	Amount    *uint256.Int
	Sender    string
	Memo      string
	Timestamp time.Time
}

// Clone returns a deep copy of the record.
func (f FundingRecord) Clone() FundingRecord {
	f.Amount = cloneAmount(f.Amount)
	return f
}

// RewardPool is the singleton balance that distributions draw from.
type RewardPool struct {
	TotalAvailable       *uint256.Int
	LastDistributionTime time.Time
	FundingHistory       []FundingRecord
}

// NewRewardPool creates an empty pool whose distribution clock starts at now.
func NewRewardPool(now time.Time) RewardPool {
	return RewardPool{
		TotalAvailable:       new(uint256.Int),
		LastDistributionTime: now,
	}
}

// Clone returns a deep copy of the pool.
func (p RewardPool) Clone() RewardPool {
	out := p
	out.TotalAvailable = cloneAmount(p.TotalAvailable)
	out.FundingHistory = make([]FundingRecord, len(p.FundingHistory))
	for i, f := range p.FundingHistory {
		out.FundingHistory[i] = f.Clone()
	}
	return out
}

// TransferKind identifies the external transfer that failed.
type TransferKind string

const (
	TransferTokens TransferKind = "tokens"
	TransferItems  TransferKind = "items"
)

// TransferFailure records an outbound transfer that could not be issued
// after its ledger mutation was already committed.
type TransferFailure struct {
	Kind      TransferKind
	Recipient string
	Amount    *uint256.Int
	ItemIDs   []string
	Reason    string
	CreatedAt time.Time
}

// Clone returns a deep copy of the failure. A nil Amount stays nil.
func (f TransferFailure) Clone() TransferFailure {
	if f.Amount != nil {
		f.Amount = cloneAmount(f.Amount)
	}
	f.ItemIDs = append([]string(nil), f.ItemIDs...)
	return f
}

// StakeSummary is the reporting view of one stake.
type StakeSummary struct {
	Index           int          `json:"index"`
	ItemIDs         []string     `json:"item_ids"`
	Queen           int          `json:"queen"`
	Worker          int          `json:"worker"`
	Drone           int          `json:"drone"`
	Weight          uint64       `json:"weight"`
	StartTime       time.Time    `json:"start_time"`
	LockupDuration  int64        `json:"lockup_seconds"`
	UnclaimedReward *uint256.Int `json:"unclaimed_reward"`
	Claimed         bool         `json:"claimed"`
}

// Summarize builds the reporting view of a stake at the given index.
func Summarize(index int, r StakeRecord) StakeSummary {
	counts := r.TypeCounts()
	return StakeSummary{
		Index:           index,
		ItemIDs:         append([]string(nil), r.ItemIDs...),
		Queen:           counts[ItemQueen],
		Worker:          counts[ItemWorker],
		Drone:           counts[ItemDrone],
		Weight:          r.Weight,
		StartTime:       r.StartTime,
		LockupDuration:  int64(r.LockupDuration / time.Second),
		UnclaimedReward: cloneAmount(r.AccruedReward),
		Claimed:         r.Claimed,
	}
}

// State is the complete persisted staking state.
type State struct {
	Accounts map[string]*StakerAccount
	Pool     RewardPool
	Failures []TransferFailure
}

// Changeset is the unit of persistence: every mutation produced by one
// operation, committed together or not at all.
type Changeset struct {
	// Accounts are full replacements; an account without stakes and with
	// nothing claimed is dropped.
	Accounts map[string]*StakerAccount
	// Pool totals, nil when unchanged. Funding history is appended via Funding.
	Pool     *RewardPool
	Funding  []FundingRecord
	Failures []TransferFailure
}

// Empty reports whether the changeset carries no mutation.
func (c *Changeset) Empty() bool {
	return len(c.Accounts) == 0 && c.Pool == nil && len(c.Funding) == 0 && len(c.Failures) == 0
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
