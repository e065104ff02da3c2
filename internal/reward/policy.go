// Package reward splits a reward amount across outstanding stakes in
// proportion to their weight.
package reward

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"hive-staking/internal/item"
	"hive-staking/internal/model"
)

// Policy decides how much is distributed in one pass, which stakes take part
// and what a claim does to a stake afterwards. The two implementations are
// mutually exclusive; an engine runs exactly one of them.
type Policy interface {
	// Name identifies the policy in configuration and logs.
	Name() string
	// Resolve returns the amount R to distribute now.
	Resolve(requested *uint256.Int, pool model.RewardPool, now time.Time) (*uint256.Int, error)
	// Eligible reports whether a stake takes part in distribution.
	Eligible(rec *model.StakeRecord) bool
	// Weight returns the weight of an eligible stake.
	Weight(rec *model.StakeRecord, weights item.WeightTable) uint64
	// DebitsPool reports whether distributed amounts leave the reward pool.
	DebitsPool() bool
	// MarksClaimed reports whether a claim closes the stake for further rewards.
	MarksClaimed() bool
}

// Policy names.
const (
	PolicyAccrual = "accrual"
	PolicyMonthly = "monthly"
)

// AccrualPolicy distributes a caller-chosen amount bounded by the pool.
// Every stake accrues on every pass and may be claimed repeatedly.
type AccrualPolicy struct{}

func (AccrualPolicy) Name() string { return PolicyAccrual }

func (AccrualPolicy) Resolve(requested *uint256.Int, pool model.RewardPool, _ time.Time) (*uint256.Int, error) {
	if requested == nil || requested.IsZero() {
		return nil, fmt.Errorf("%w: distribution amount must be positive", model.ErrInvalidInput)
	}
	if requested.Gt(pool.TotalAvailable) {
		return nil, fmt.Errorf("%w: requested %s, available %s", model.ErrInsufficientPool, requested.Dec(), pool.TotalAvailable.Dec())
	}
	return new(uint256.Int).Set(requested), nil
}

func (AccrualPolicy) Eligible(*model.StakeRecord) bool { return true }

// Weight sums the table weight of every item so a schedule change applies
// to existing stakes too.
func (AccrualPolicy) Weight(rec *model.StakeRecord, weights item.WeightTable) uint64 {
	return weights.StakeWeight(rec.ItemTypes)
}

func (AccrualPolicy) DebitsPool() bool   { return true }
func (AccrualPolicy) MarksClaimed() bool { return false }

// MonthlyPolicy distributes a fixed amount at most once per interval.
// A stake is paid once: after its claim it no longer takes part.
type MonthlyPolicy struct {
	Amount   *uint256.Int
	Interval time.Duration
}

func (MonthlyPolicy) Name() string { return PolicyMonthly }

// Resolve ignores requested; the amount is fixed.
func (p MonthlyPolicy) Resolve(_ *uint256.Int, pool model.RewardPool, now time.Time) (*uint256.Int, error) {
	if p.Amount == nil || p.Amount.IsZero() {
		return nil, fmt.Errorf("%w: monthly amount is not configured", model.ErrInvalidInput)
	}
	if next := pool.LastDistributionTime.Add(p.Interval); now.Before(next) {
		return nil, fmt.Errorf("%w: next distribution at %s", model.ErrDistributionNotDue, next.Format(time.RFC3339))
	}
	return new(uint256.Int).Set(p.Amount), nil
}

func (MonthlyPolicy) Eligible(rec *model.StakeRecord) bool { return !rec.Claimed }

// Weight uses the weight fixed on the record when it was opened.
func (MonthlyPolicy) Weight(rec *model.StakeRecord, _ item.WeightTable) uint64 {
	return rec.Weight
}

func (MonthlyPolicy) DebitsPool() bool   { return false }
func (MonthlyPolicy) MarksClaimed() bool { return true }

// NewPolicy builds a policy by name.
func NewPolicy(name string, monthlyAmount *uint256.Int, interval time.Duration) (Policy, error) {
	switch name {
	case PolicyAccrual, "":
		return AccrualPolicy{}, nil
	case PolicyMonthly:
		if monthlyAmount == nil || monthlyAmount.IsZero() {
			return nil, fmt.Errorf("monthly policy needs a positive amount")
		}
		return MonthlyPolicy{Amount: monthlyAmount, Interval: interval}, nil
	}
	return nil, fmt.Errorf("unknown distribution policy %q", name)
}
