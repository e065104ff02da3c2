package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"hive-staking/internal/model"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestStore starts PostgreSQL in a container and returns a migrated store.
// Skips the test if Docker is not available.
func setupTestStore(t *testing.T) (*PostgresStore, *pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx, t0))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return store, pool, cleanup
}

// maxAmount is 2^128 - 1, the top of the token amount range.
func maxAmount() *uint256.Int {
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	return v.Sub(v, uint256.NewInt(1))
}

func sampleAccount() *model.StakerAccount {
	acc := model.NewStakerAccount("alice.near")
	acc.TotalRewardsClaimed = uint256.NewInt(1000)
	acc.Stakes = []model.StakeRecord{
		{
			ItemIDs:        []string{"bee:2", "bee:1"},
			ItemTypes:      map[string]model.ItemType{"bee:1": model.ItemQueen, "bee:2": model.ItemDrone},
			Weight:         70,
			StartTime:      t0,
			LockupDuration: 30 * 24 * time.Hour,
			AccruedReward:  maxAmount(),
		},
		{
			ItemIDs:        []string{"bee:7"},
			ItemTypes:      map[string]model.ItemType{"bee:7": model.ItemWorker},
			Weight:         30,
			StartTime:      t0.Add(time.Hour),
			LockupDuration: 30 * 24 * time.Hour,
			AccruedReward:  new(uint256.Int),
			Claimed:        true,
		},
	}
	return acc
}

func TestPostgresStore_MigrateSeedsPool(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	// Running again keeps the existing pool row
	require.NoError(t, store.Migrate(ctx, t0.Add(time.Hour)))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Accounts)
	assert.True(t, state.Pool.TotalAvailable.IsZero())
	assert.True(t, state.Pool.LastDistributionTime.Equal(t0))
	assert.Empty(t, state.Pool.FundingHistory)
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	acc := sampleAccount()
	pool := model.RewardPool{TotalAvailable: maxAmount(), LastDistributionTime: t0.Add(15 * 24 * time.Hour)}

	err := store.Commit(ctx, &model.Changeset{
		Accounts: map[string]*model.StakerAccount{acc.Staker: acc},
		Pool:     &pool,
		Funding: []model.FundingRecord{
			{Amount: uint256.NewInt(5000), Sender: "owner.near", Memo: "season 1", Timestamp: t0},
		},
		Failures: []model.TransferFailure{
			{Kind: model.TransferTokens, Recipient: "alice.near", Amount: uint256.NewInt(10), Reason: "timeout", CreatedAt: t0},
			{Kind: model.TransferItems, Recipient: "bob.near", ItemIDs: []string{"bee:9"}, Reason: "rejected", CreatedAt: t0},
		},
	})
	require.NoError(t, err)

	state, err := store.Load(ctx)
	require.NoError(t, err)

	got, ok := state.Accounts["alice.near"]
	require.True(t, ok)
	assert.Equal(t, acc.TotalRewardsClaimed.Dec(), got.TotalRewardsClaimed.Dec())
	require.Len(t, got.Stakes, 2)
	for i := range acc.Stakes {
		want, have := acc.Stakes[i], got.Stakes[i]
		assert.Equal(t, want.ItemIDs, have.ItemIDs)
		assert.Equal(t, want.ItemTypes, have.ItemTypes)
		assert.Equal(t, want.Weight, have.Weight)
		assert.True(t, want.StartTime.Equal(have.StartTime))
		assert.Equal(t, want.LockupDuration, have.LockupDuration)
		assert.Equal(t, want.AccruedReward.Dec(), have.AccruedReward.Dec())
		assert.Equal(t, want.Claimed, have.Claimed)
	}

	assert.Equal(t, maxAmount().Dec(), state.Pool.TotalAvailable.Dec())
	assert.True(t, state.Pool.LastDistributionTime.Equal(pool.LastDistributionTime))
	require.Len(t, state.Pool.FundingHistory, 1)
	assert.Equal(t, "season 1", state.Pool.FundingHistory[0].Memo)
	assert.Equal(t, uint64(5000), state.Pool.FundingHistory[0].Amount.Uint64())

	require.Len(t, state.Failures, 2)
	assert.Equal(t, model.TransferTokens, state.Failures[0].Kind)
	assert.Equal(t, uint64(10), state.Failures[0].Amount.Uint64())
	assert.Nil(t, state.Failures[1].Amount)
	assert.Equal(t, []string{"bee:9"}, state.Failures[1].ItemIDs)
}

func TestPostgresStore_RewriteKeepsOrder(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	acc := sampleAccount()
	require.NoError(t, store.Commit(ctx, &model.Changeset{Accounts: map[string]*model.StakerAccount{acc.Staker: acc}}))

	// Swap the stakes as a removal would and drop one
	acc.Stakes = []model.StakeRecord{acc.Stakes[1]}
	require.NoError(t, store.Commit(ctx, &model.Changeset{Accounts: map[string]*model.StakerAccount{acc.Staker: acc}}))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Accounts["alice.near"].Stakes, 1)
	assert.Equal(t, []string{"bee:7"}, state.Accounts["alice.near"].Stakes[0].ItemIDs)
}

func TestPostgresStore_DropsEmptyAccount(t *testing.T) {
	store, pool, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	acc := sampleAccount()
	acc.TotalRewardsClaimed = new(uint256.Int)
	require.NoError(t, store.Commit(ctx, &model.Changeset{Accounts: map[string]*model.StakerAccount{acc.Staker: acc}}))

	acc.Stakes = nil
	require.NoError(t, store.Commit(ctx, &model.Changeset{Accounts: map[string]*model.StakerAccount{acc.Staker: acc}}))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM stakers`).Scan(&n))
	assert.Equal(t, 0, n)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM stakes`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestPostgresStore_FailedCommitWritesNothing(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	acc := sampleAccount()
	// The kind overflows VARCHAR(16), failing the batch after the account rows
	err := store.Commit(ctx, &model.Changeset{
		Accounts: map[string]*model.StakerAccount{acc.Staker: acc},
		Failures: []model.TransferFailure{{Kind: "a-kind-that-is-far-too-long", Recipient: "x", Reason: "x", CreatedAt: t0}},
	})
	require.Error(t, err)

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Accounts)
	assert.Empty(t, state.Failures)
}
