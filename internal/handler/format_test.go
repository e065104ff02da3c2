package handler

import (
	"fmt"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive-staking/internal/model"
	"hive-staking/internal/pkg/lock"
	"hive-staking/internal/service"
)

func TestParseIndex(t *testing.T) {
	i, err := parseIndex([]string{"3"})
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	for _, args := range [][]string{nil, {"a"}, {"-1"}, {"1", "2"}} {
		_, err := parseIndex(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrapped: %w", model.ErrLockupActive), "still locked"},
		{model.ErrNothingToClaim, "Nothing to claim"},
		{model.ErrIndexOutOfRange, "No stake with that index"},
		{model.ErrItemAlreadyStaked, "already staked"},
		{lock.ErrLockTimeout, "still running"},
		{fmt.Errorf("boom"), "Operation failed"},
	}
	for _, tt := range tests {
		assert.Contains(t, errorMessage(tt.err), tt.want)
	}
}

func TestFormatStakes(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	stakes := []model.StakeSummary{
		{
			Index: 0, Queen: 1, Weight: 50,
			StartTime:       now.Add(-5 * 24 * time.Hour),
			LockupDuration:  int64((30 * 24 * time.Hour) / time.Second),
			UnclaimedReward: uint256.NewInt(416),
		},
		{
			Index: 1, Drone: 2, Weight: 40,
			StartTime:       now.Add(-40 * 24 * time.Hour),
			LockupDuration:  int64((30 * 24 * time.Hour) / time.Second),
			UnclaimedReward: new(uint256.Int),
			Claimed:         true,
		},
	}

	out := FormatStakes(stakes, uint256.NewInt(1000), now)
	assert.Contains(t, out, "#0")
	assert.Contains(t, out, "Unclaimed: 416")
	assert.Contains(t, out, "Locked for 25d 0h")
	assert.Contains(t, out, "Unlocked")
	assert.Contains(t, out, "Closed for rewards")
	assert.Contains(t, out, "Total claimed: 1000")

	assert.Contains(t, FormatStakes(nil, nil, now), "no stakes")
}

func TestFormatPool(t *testing.T) {
	out := FormatPool(service.PoolStatus{
		Available:            uint256.NewInt(5000),
		LastDistributionTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UntilNext:            90 * time.Minute,
		Policy:               "accrual",
		Stakers:              2,
		Stakes:               3,
	})
	assert.Contains(t, out, "Available: 5000")
	assert.Contains(t, out, "Stakers: 2  Stakes: 3")
	assert.Contains(t, out, "Next due in: 1h 30m")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "now", FormatDuration(0))
	assert.Equal(t, "now", FormatDuration(-time.Hour))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "2h 0m", FormatDuration(2*time.Hour))
	assert.Equal(t, "3d 4h", FormatDuration(76*time.Hour+10*time.Minute))
}

func TestStakerID(t *testing.T) {
	assert.Equal(t, "123456789", StakerID(123456789))
}

func TestFormatTop(t *testing.T) {
	assert.Contains(t, FormatTop(nil), "No stakers")

	out := FormatTop([]service.StakerRank{
		{Staker: "1", Weight: 90, Stakes: 2, TotalClaimed: uint256.NewInt(7)},
		{Staker: "2", Weight: 50, Stakes: 1, TotalClaimed: new(uint256.Int)},
		{Staker: "3", Weight: 20, Stakes: 1, TotalClaimed: new(uint256.Int)},
		{Staker: "4", Weight: 20, Stakes: 1, TotalClaimed: new(uint256.Int)},
	})
	assert.Contains(t, out, "🥇 1  weight 90  stakes 2  claimed 7")
	assert.Contains(t, out, "4. 4")
}
