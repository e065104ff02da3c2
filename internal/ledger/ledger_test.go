package ledger

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive-staking/internal/model"
)

const lockup = 30 * 24 * time.Hour

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func openStake(t *testing.T, l *Ledger, staker string, ids ...string) int {
	t.Helper()
	types := make(map[string]model.ItemType, len(ids))
	for _, id := range ids {
		types[id] = model.ItemDrone
	}
	b := l.Begin()
	idx, err := b.OpenStake(staker, ids, types, uint64(20*len(ids)), t0)
	require.NoError(t, err)
	l.Apply(b)
	return idx
}

func TestOpenStake(t *testing.T) {
	l := New(lockup)
	b := l.Begin()

	idx, err := b.OpenStake("alice", []string{"bee-1", "bee-2"}, map[string]model.ItemType{
		"bee-1": model.ItemQueen,
		"bee-2": model.ItemDrone,
	}, 70, t0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	// Not visible before Apply
	_, err = l.GetStake("alice", 0)
	assert.ErrorIs(t, err, model.ErrNotFound)

	l.Apply(b)

	rec, err := l.GetStake("alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bee-1", "bee-2"}, rec.ItemIDs)
	assert.Equal(t, uint64(70), rec.Weight)
	assert.Equal(t, t0, rec.StartTime)
	assert.Equal(t, lockup, rec.LockupDuration)
	assert.True(t, rec.AccruedReward.IsZero())
	assert.True(t, l.IsStaked("bee-2"))
	assert.False(t, l.IsStaked("bee-3"))
}

func TestOpenStake_InvalidInput(t *testing.T) {
	l := New(lockup)
	b := l.Begin()

	_, err := b.OpenStake("alice", nil, nil, 0, t0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = b.OpenStake("alice", []string{"bee-1"}, map[string]model.ItemType{}, 0, t0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = b.OpenStake("alice", []string{"bee-1", "bee-1"}, map[string]model.ItemType{"bee-1": model.ItemDrone}, 40, t0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestGetStake_Errors(t *testing.T) {
	l := New(lockup)
	openStake(t, l, "alice", "bee-1")

	_, err := l.GetStake("bob", 0)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = l.GetStake("alice", 1)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)

	_, err = l.GetStake("alice", -1)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestReplaceStake_KeepsImmutableFields(t *testing.T) {
	l := New(lockup)
	openStake(t, l, "alice", "bee-1")

	b := l.Begin()
	rec, err := b.GetStake("alice", 0)
	require.NoError(t, err)

	rec.AccruedReward = uint256.NewInt(500)
	rec.Claimed = true
	rec.ItemIDs = []string{"forged"}
	rec.StartTime = t0.Add(time.Hour)
	require.NoError(t, b.ReplaceStake("alice", 0, rec))
	l.Apply(b)

	got, err := l.GetStake("alice", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.AccruedReward.Uint64())
	assert.True(t, got.Claimed)
	assert.Equal(t, []string{"bee-1"}, got.ItemIDs)
	assert.Equal(t, t0, got.StartTime)
}

func TestRemoveStake_SwapsLast(t *testing.T) {
	l := New(lockup)
	openStake(t, l, "alice", "bee-0")
	openStake(t, l, "alice", "bee-1")
	openStake(t, l, "alice", "bee-2")

	b := l.Begin()
	removed, err := b.RemoveStake("alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bee-0"}, removed.ItemIDs)
	l.Apply(b)

	first, err := l.GetStake("alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bee-2"}, first.ItemIDs)

	second, err := l.GetStake("alice", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bee-1"}, second.ItemIDs)

	_, err = l.GetStake("alice", 2)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestRemoveStake_DropsEmptyAccount(t *testing.T) {
	l := New(lockup)
	openStake(t, l, "alice", "bee-0")

	b := l.Begin()
	_, err := b.RemoveStake("alice", 0)
	require.NoError(t, err)
	l.Apply(b)

	_, ok := l.Account("alice")
	assert.False(t, ok)
	assert.Empty(t, l.Stakers())
}

func TestAddClaimed_KeepsAccountWithoutStakes(t *testing.T) {
	l := New(lockup)
	openStake(t, l, "alice", "bee-0")

	b := l.Begin()
	require.NoError(t, b.AddClaimed("alice", uint256.NewInt(42)))
	_, err := b.RemoveStake("alice", 0)
	require.NoError(t, err)
	l.Apply(b)

	acc, ok := l.Account("alice")
	require.True(t, ok)
	assert.Empty(t, acc.Stakes)
	assert.Equal(t, uint64(42), acc.TotalRewardsClaimed.Uint64())
}

func TestBatch_DiscardLeavesLedgerUntouched(t *testing.T) {
	l := New(lockup)
	openStake(t, l, "alice", "bee-0")

	b := l.Begin()
	rec, err := b.GetStake("alice", 0)
	require.NoError(t, err)
	rec.AccruedReward = uint256.NewInt(9)
	require.NoError(t, b.ReplaceStake("alice", 0, rec))
	_, err = b.RemoveStake("alice", 0)
	require.NoError(t, err)
	// Batch dropped without Apply

	got, err := l.GetStake("alice", 0)
	require.NoError(t, err)
	assert.True(t, got.AccruedReward.IsZero())
	assert.Len(t, b.Accounts(), 1)
}

func TestRestore(t *testing.T) {
	acc := model.NewStakerAccount("alice")
	acc.Stakes = append(acc.Stakes, model.StakeRecord{
		ItemIDs:        []string{"bee-1"},
		ItemTypes:      map[string]model.ItemType{"bee-1": model.ItemWorker},
		Weight:         30,
		StartTime:      t0,
		LockupDuration: lockup,
		AccruedReward:  uint256.NewInt(7),
	})
	empty := model.NewStakerAccount("bob")

	l := Restore(lockup, map[string]*model.StakerAccount{"alice": acc, "bob": empty})
	assert.Equal(t, []string{"alice"}, l.Stakers())
	assert.Equal(t, 1, l.StakeCount())

	// Restored ledger does not alias the input
	acc.Stakes[0].AccruedReward.SetUint64(100)
	got, err := l.GetStake("alice", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.AccruedReward.Uint64())
}
