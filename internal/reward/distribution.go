package reward

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"hive-staking/internal/item"
	"hive-staking/internal/ledger"
	"hive-staking/internal/model"
)

// Credit is the reward owed to one stake by a distribution pass.
type Credit struct {
	Staker string
	Index  int
	Weight uint64
	Amount *uint256.Int
}

// Plan is a fully computed distribution pass that has not been applied yet.
type Plan struct {
	Amount      *uint256.Int
	TotalWeight uint64
	Credits     []Credit
	// Distributed is the sum of all credits; Amount minus Distributed is
	// rounding loss and is smaller than TotalWeight.
	Distributed *uint256.Int
}

// Remainder returns the undistributed rounding loss.
func (p *Plan) Remainder() *uint256.Int {
	return new(uint256.Int).Sub(p.Amount, p.Distributed)
}

// Distributor runs distribution passes under one policy and weight table.
type Distributor struct {
	policy  Policy
	weights item.WeightTable
}

// NewDistributor creates a distributor.
func NewDistributor(policy Policy, weights item.WeightTable) *Distributor {
	return &Distributor{policy: policy, weights: weights}
}

// Policy returns the distributor's policy.
func (d *Distributor) Policy() Policy {
	return d.policy
}

// Weights returns the distributor's weight table.
func (d *Distributor) Weights() item.WeightTable {
	return d.weights
}

// Plan computes a distribution pass over the current ledger.
//
// All weights are read before any amount is computed, and nothing is written:
// the caller applies the plan to a batch, which keeps the pass atomic and free
// of order-dependent effects.
func (d *Distributor) Plan(l *ledger.Ledger, pool model.RewardPool, requested *uint256.Int, now time.Time) (*Plan, error) {
	amount, err := d.policy.Resolve(requested, pool, now)
	if err != nil {
		return nil, err
	}

	var (
		credits     []Credit
		totalWeight uint64
		wrapped     bool
	)
	l.ForEachStake(func(staker string, index int, rec *model.StakeRecord) {
		if !d.policy.Eligible(rec) {
			return
		}
		w := d.policy.Weight(rec, d.weights)
		credits = append(credits, Credit{Staker: staker, Index: index, Weight: w})
		if totalWeight+w < totalWeight {
			wrapped = true
		}
		totalWeight += w
	})
	if wrapped {
		return nil, fmt.Errorf("%w: total stake weight overflows", model.ErrInvalidInput)
	}
	if totalWeight == 0 {
		return nil, model.ErrNothingToDistribute
	}

	plan := &Plan{
		Amount:      amount,
		TotalWeight: totalWeight,
		Credits:     credits,
		Distributed: new(uint256.Int),
	}
	total := uint256.NewInt(totalWeight)
	for i := range plan.Credits {
		c := &plan.Credits[i]
		share, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(c.Weight), total)
		if overflow {
			return nil, fmt.Errorf("%w: share of stake %d of %s overflows", model.ErrInvalidInput, c.Index, c.Staker)
		}
		c.Amount = share
		plan.Distributed.Add(plan.Distributed, share)
	}
	return plan, nil
}

// Apply credits every stake in the plan to the batch.
func (p *Plan) Apply(b *ledger.Batch) error {
	for _, c := range p.Credits {
		if c.Amount.IsZero() {
			continue
		}
		rec, err := b.GetStake(c.Staker, c.Index)
		if err != nil {
			return fmt.Errorf("failed to credit stake %d of %s: %w", c.Index, c.Staker, err)
		}
		rec.AccruedReward = new(uint256.Int).Add(rec.AccruedReward, c.Amount)
		if err := b.ReplaceStake(c.Staker, c.Index, rec); err != nil {
			return fmt.Errorf("failed to credit stake %d of %s: %w", c.Index, c.Staker, err)
		}
	}
	return nil
}
