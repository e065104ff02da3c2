package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive-staking/internal/model"
	"hive-staking/internal/reward"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeConfig(t, `
owner:
  id: owner.near
external:
  token_ledger_id: token.near
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 720*time.Hour, cfg.Staking.Lockup)
	assert.Equal(t, ":8080", cfg.API.Listen)
	assert.Equal(t, "info", cfg.Log.Level)

	weights, err := cfg.WeightTable()
	require.NoError(t, err)
	assert.Equal(t, uint64(50), weights.Weight(model.ItemQueen))
	assert.Equal(t, uint64(30), weights.Weight(model.ItemWorker))
	assert.Equal(t, uint64(20), weights.Weight(model.ItemDrone))

	policy, err := cfg.RewardPolicy()
	require.NoError(t, err)
	assert.Equal(t, reward.PolicyAccrual, policy.Name())
}

func TestLoad_FileValues(t *testing.T) {
	dir := writeConfig(t, `
owner:
  id: owner.near
  telegram_ids: [42]
external:
  token_ledger_id: token.near
  registry_id: items.near
staking:
  lockup: 1h
  policy: monthly
  monthly_amount: "1000000000000000000000000"
  weights:
    queen: 5
    worker: 3
    drone: 1
whitelist:
  chats: [-100]
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Staking.Lockup)
	assert.Equal(t, "items.near", cfg.External.RegistryID)
	assert.True(t, cfg.IsAdmin(42))
	assert.False(t, cfg.IsAdmin(43))
	assert.True(t, cfg.IsChatAllowed(-100))
	assert.False(t, cfg.IsChatAllowed(-200))

	weights, err := cfg.WeightTable()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), weights.Weight(model.ItemDrone))

	policy, err := cfg.RewardPolicy()
	require.NoError(t, err)
	monthly, ok := policy.(reward.MonthlyPolicy)
	require.True(t, ok)
	assert.Equal(t, "1000000000000000000000000", monthly.Amount.Dec())
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := writeConfig(t, `
owner:
  id: owner.near
external:
  token_ledger_id: token.near
`)
	t.Setenv("OWNER_ID", "other.near")
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "other.near", cfg.Owner.ID)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing owner", "external:\n  token_ledger_id: token.near\n"},
		{"missing ledger", "owner:\n  id: owner.near\n"},
		{"unknown weight", "owner:\n  id: o\nexternal:\n  token_ledger_id: t\nstaking:\n  weights:\n    larva: 1\n"},
		{"monthly without amount", "owner:\n  id: o\nexternal:\n  token_ledger_id: t\nstaking:\n  policy: monthly\n"},
		{"bad amount", "owner:\n  id: o\nexternal:\n  token_ledger_id: t\nstaking:\n  policy: monthly\n  monthly_amount: \"-5\"\n"},
		{"unknown policy", "owner:\n  id: o\nexternal:\n  token_ledger_id: t\nstaking:\n  policy: weekly\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5433, Name: "n"}
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=disable", d.DSN())
}

func TestIsChatAllowed_EmptyWhitelist(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.IsChatAllowed(12345))
}
