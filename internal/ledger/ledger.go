// Package ledger owns every staker account and the stake records inside them.
//
// Reads go straight to the ledger. Writes are staged in a Batch, which copies
// an account on first write, and become visible only through Apply, so a
// rejected operation never leaves a partial mutation behind.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"hive-staking/internal/model"
)

// Ledger maps staker identity to that staker's account.
// It is not safe for concurrent use; the engine serializes access.
type Ledger struct {
	accounts map[string]*model.StakerAccount
	lockup   time.Duration
}

// New creates an empty ledger whose stakes lock for lockup.
func New(lockup time.Duration) *Ledger {
	return &Ledger{
		accounts: make(map[string]*model.StakerAccount),
		lockup:   lockup,
	}
}

// Restore creates a ledger from persisted accounts.
func Restore(lockup time.Duration, accounts map[string]*model.StakerAccount) *Ledger {
	l := New(lockup)
	for staker, acc := range accounts {
		if len(acc.Stakes) == 0 && acc.TotalRewardsClaimed.IsZero() {
			continue
		}
		l.accounts[staker] = acc.Clone()
	}
	return l
}

// Lockup returns the lockup duration applied to new stakes.
func (l *Ledger) Lockup() time.Duration {
	return l.lockup
}

// Account returns a copy of the staker's account.
func (l *Ledger) Account(staker string) (*model.StakerAccount, bool) {
	acc, ok := l.accounts[staker]
	if !ok {
		return nil, false
	}
	return acc.Clone(), true
}

// GetStake returns a copy of the stake at index.
func (l *Ledger) GetStake(staker string, index int) (model.StakeRecord, error) {
	return getStake(l.accounts[staker], staker, index)
}

// Stakers returns every staker identity in sorted order.
func (l *Ledger) Stakers() []string {
	stakers := make([]string, 0, len(l.accounts))
	for staker := range l.accounts {
		stakers = append(stakers, staker)
	}
	sort.Strings(stakers)
	return stakers
}

// StakeCount returns the number of outstanding stakes across all stakers.
func (l *Ledger) StakeCount() int {
	n := 0
	for _, acc := range l.accounts {
		n += len(acc.Stakes)
	}
	return n
}

// ForEachStake visits every outstanding stake in deterministic order.
// The record passed to fn must not be retained or modified.
func (l *Ledger) ForEachStake(fn func(staker string, index int, rec *model.StakeRecord)) {
	for _, staker := range l.Stakers() {
		acc := l.accounts[staker]
		for i := range acc.Stakes {
			fn(staker, i, &acc.Stakes[i])
		}
	}
}

// IsStaked reports whether itemID belongs to any outstanding stake.
func (l *Ledger) IsStaked(itemID string) bool {
	for _, acc := range l.accounts {
		for _, s := range acc.Stakes {
			if _, ok := s.ItemTypes[itemID]; ok {
				return true
			}
		}
	}
	return false
}

// Begin starts a batch of staged writes.
func (l *Ledger) Begin() *Batch {
	return &Batch{
		ledger: l,
		staged: make(map[string]*model.StakerAccount),
	}
}

// Apply makes every write staged in b visible.
func (l *Ledger) Apply(b *Batch) {
	for staker, acc := range b.staged {
		if len(acc.Stakes) == 0 && acc.TotalRewardsClaimed.IsZero() {
			delete(l.accounts, staker)
			continue
		}
		l.accounts[staker] = acc
	}
	b.staged = nil
}

// Batch stages writes against a ledger.
type Batch struct {
	ledger *Ledger
	staged map[string]*model.StakerAccount
}

// account returns the staged account, copying it from the ledger on first use.
func (b *Batch) account(staker string, create bool) *model.StakerAccount {
	if acc, ok := b.staged[staker]; ok {
		return acc
	}
	if acc, ok := b.ledger.accounts[staker]; ok {
		cp := acc.Clone()
		b.staged[staker] = cp
		return cp
	}
	if !create {
		return nil
	}
	acc := model.NewStakerAccount(staker)
	b.staged[staker] = acc
	return acc
}

// OpenStake appends a new stake for staker and returns its index.
// Authorization and ownership are checked upstream; the only precondition
// here is a non-empty item set with a type for every item.
func (b *Batch) OpenStake(staker string, itemIDs []string, types map[string]model.ItemType, weight uint64, now time.Time) (int, error) {
	if staker == "" {
		return 0, fmt.Errorf("%w: empty staker", model.ErrInvalidInput)
	}
	if len(itemIDs) == 0 {
		return 0, fmt.Errorf("%w: empty item set", model.ErrInvalidInput)
	}

	rec := model.StakeRecord{
		ItemIDs:        append([]string(nil), itemIDs...),
		ItemTypes:      make(map[string]model.ItemType, len(itemIDs)),
		Weight:         weight,
		StartTime:      now,
		LockupDuration: b.ledger.lockup,
		AccruedReward:  new(uint256.Int),
	}
	for _, id := range itemIDs {
		t, ok := types[id]
		if !ok {
			return 0, fmt.Errorf("%w: item %s has no type", model.ErrInvalidInput, id)
		}
		if _, dup := rec.ItemTypes[id]; dup {
			return 0, fmt.Errorf("%w: item %s listed twice", model.ErrInvalidInput, id)
		}
		rec.ItemTypes[id] = t
	}

	acc := b.account(staker, true)
	acc.Stakes = append(acc.Stakes, rec)
	return len(acc.Stakes) - 1, nil
}

// GetStake returns a copy of the stake at index as staged in the batch.
func (b *Batch) GetStake(staker string, index int) (model.StakeRecord, error) {
	if acc, ok := b.staged[staker]; ok {
		return getStake(acc, staker, index)
	}
	return b.ledger.GetStake(staker, index)
}

// ReplaceStake overwrites the stake at index. Only the mutable fields of
// updated are taken; item set, start time and lockup are kept.
func (b *Batch) ReplaceStake(staker string, index int, updated model.StakeRecord) error {
	acc := b.account(staker, false)
	if _, err := getStake(acc, staker, index); err != nil {
		return err
	}
	cur := &acc.Stakes[index]
	cur.AccruedReward = new(uint256.Int).Set(updated.AccruedReward)
	cur.Claimed = updated.Claimed
	return nil
}

// RemoveStake removes the stake at index by swapping in the last stake.
// Indices of the remaining stakes are not stable across this call.
func (b *Batch) RemoveStake(staker string, index int) (model.StakeRecord, error) {
	acc := b.account(staker, false)
	rec, err := getStake(acc, staker, index)
	if err != nil {
		return model.StakeRecord{}, err
	}
	last := len(acc.Stakes) - 1
	acc.Stakes[index] = acc.Stakes[last]
	acc.Stakes = acc.Stakes[:last]
	return rec, nil
}

// AddClaimed increases the staker's lifetime claimed counter.
func (b *Batch) AddClaimed(staker string, amount *uint256.Int) error {
	acc := b.account(staker, false)
	if acc == nil {
		return fmt.Errorf("%w: %s", model.ErrNotFound, staker)
	}
	acc.TotalRewardsClaimed = new(uint256.Int).Add(acc.TotalRewardsClaimed, amount)
	return nil
}

// Accounts returns copies of every account touched by the batch.
func (b *Batch) Accounts() map[string]*model.StakerAccount {
	out := make(map[string]*model.StakerAccount, len(b.staged))
	for staker, acc := range b.staged {
		out[staker] = acc.Clone()
	}
	return out
}

func getStake(acc *model.StakerAccount, staker string, index int) (model.StakeRecord, error) {
	if acc == nil {
		return model.StakeRecord{}, fmt.Errorf("%w: %s", model.ErrNotFound, staker)
	}
	if index < 0 || index >= len(acc.Stakes) {
		return model.StakeRecord{}, fmt.Errorf("%w: %d (stakes: %d)", model.ErrIndexOutOfRange, index, len(acc.Stakes))
	}
	return acc.Stakes[index].Clone(), nil
}
