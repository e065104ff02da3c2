// Package repository persists staking state.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"hive-staking/internal/model"
)

// ErrCorruptAmount is returned when a stored amount is not a valid 256-bit
// unsigned decimal.
var ErrCorruptAmount = errors.New("stored amount is not a valid unsigned integer")

// schema creates every table the store needs. Amounts are NUMERIC(78,0) so
// any 256-bit value fits, and stake rows carry their position so the order
// produced by swap-remove survives a reload.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stakers (
		staker TEXT PRIMARY KEY,
		total_rewards_claimed NUMERIC(78,0) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS stakes (
		staker TEXT NOT NULL REFERENCES stakers(staker) ON DELETE CASCADE,
		position INT NOT NULL,
		item_ids TEXT[] NOT NULL,
		item_types TEXT[] NOT NULL,
		weight BIGINT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		lockup_ns BIGINT NOT NULL,
		accrued_reward NUMERIC(78,0) NOT NULL DEFAULT 0,
		claimed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (staker, position)
	)`,
	`CREATE TABLE IF NOT EXISTS reward_pool (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		total_available NUMERIC(78,0) NOT NULL DEFAULT 0,
		last_distribution_time TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS funding_records (
		id BIGSERIAL PRIMARY KEY,
		amount NUMERIC(78,0) NOT NULL,
		sender TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transfer_failures (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		recipient TEXT NOT NULL,
		amount NUMERIC(78,0),
		item_ids TEXT[] NOT NULL DEFAULT '{}',
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stakes_item_ids ON stakes USING GIN (item_ids)`,
}

// PostgresStore keeps staking state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema and the singleton pool row. The distribution
// clock of a fresh pool starts at now.
func (s *PostgresStore) Migrate(ctx context.Context, now time.Time) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}

	const seedPool = `
		INSERT INTO reward_pool (id, total_available, last_distribution_time)
		VALUES (1, 0, $1)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, seedPool, now); err != nil {
		return fmt.Errorf("failed to seed reward pool: %w", err)
	}

	log.Info().Int("migrations", len(schema)).Msg("Staking schema ready")
	return nil
}

// Load reads the complete staking state.
func (s *PostgresStore) Load(ctx context.Context) (*model.State, error) {
	state := &model.State{Accounts: make(map[string]*model.StakerAccount)}

	if err := s.loadAccounts(ctx, state); err != nil {
		return nil, err
	}
	if err := s.loadPool(ctx, state); err != nil {
		return nil, err
	}
	if err := s.loadFailures(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *PostgresStore) loadAccounts(ctx context.Context, state *model.State) error {
	rows, err := s.pool.Query(ctx, `SELECT staker, total_rewards_claimed::text FROM stakers`)
	if err != nil {
		return fmt.Errorf("failed to load stakers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var staker, claimed string
		if err := rows.Scan(&staker, &claimed); err != nil {
			return fmt.Errorf("failed to scan staker: %w", err)
		}
		acc := model.NewStakerAccount(staker)
		if acc.TotalRewardsClaimed, err = parseAmount(claimed); err != nil {
			return fmt.Errorf("staker %s: %w", staker, err)
		}
		state.Accounts[staker] = acc
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load stakers: %w", err)
	}

	const query = `
		SELECT staker, position, item_ids, item_types, weight, start_time, lockup_ns,
			accrued_reward::text, claimed
		FROM stakes
		ORDER BY staker, position
	`
	rows, err = s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load stakes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			staker    string
			position  int
			itemIDs   []string
			itemTypes []string
			weight    int64
			startTime time.Time
			lockupNs  int64
			accrued   string
			claimed   bool
		)
		if err := rows.Scan(&staker, &position, &itemIDs, &itemTypes, &weight, &startTime, &lockupNs, &accrued, &claimed); err != nil {
			return fmt.Errorf("failed to scan stake: %w", err)
		}
		acc, ok := state.Accounts[staker]
		if !ok {
			return fmt.Errorf("stake %d references unknown staker %s", position, staker)
		}
		if position != len(acc.Stakes) {
			return fmt.Errorf("staker %s: stake positions not contiguous at %d", staker, position)
		}
		if len(itemIDs) != len(itemTypes) {
			return fmt.Errorf("staker %s stake %d: %d items but %d types", staker, position, len(itemIDs), len(itemTypes))
		}

		rec := model.StakeRecord{
			ItemIDs:        itemIDs,
			ItemTypes:      make(map[string]model.ItemType, len(itemIDs)),
			Weight:         uint64(weight),
			StartTime:      startTime.UTC(),
			LockupDuration: time.Duration(lockupNs),
			Claimed:        claimed,
		}
		for i, id := range itemIDs {
			rec.ItemTypes[id] = model.ItemType(itemTypes[i])
		}
		if rec.AccruedReward, err = parseAmount(accrued); err != nil {
			return fmt.Errorf("staker %s stake %d: %w", staker, position, err)
		}
		acc.Stakes = append(acc.Stakes, rec)
	}
	return rows.Err()
}

func (s *PostgresStore) loadPool(ctx context.Context, state *model.State) error {
	var available string
	err := s.pool.QueryRow(ctx,
		`SELECT total_available::text, last_distribution_time FROM reward_pool WHERE id = 1`,
	).Scan(&available, &state.Pool.LastDistributionTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reward pool row missing, run migrations first")
		}
		return fmt.Errorf("failed to load reward pool: %w", err)
	}
	state.Pool.LastDistributionTime = state.Pool.LastDistributionTime.UTC()
	if state.Pool.TotalAvailable, err = parseAmount(available); err != nil {
		return fmt.Errorf("reward pool: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT amount::text, sender, memo, created_at FROM funding_records ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to load funding history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			amount string
			rec    model.FundingRecord
		)
		if err := rows.Scan(&amount, &rec.Sender, &rec.Memo, &rec.Timestamp); err != nil {
			return fmt.Errorf("failed to scan funding record: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		if rec.Amount, err = parseAmount(amount); err != nil {
			return fmt.Errorf("funding record: %w", err)
		}
		state.Pool.FundingHistory = append(state.Pool.FundingHistory, rec)
	}
	return rows.Err()
}

func (s *PostgresStore) loadFailures(ctx context.Context, state *model.State) error {
	const query = `
		SELECT kind, recipient, amount::text, item_ids, reason, created_at
		FROM transfer_failures
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load transfer failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f      model.TransferFailure
			kind   string
			amount *string
		)
		if err := rows.Scan(&kind, &f.Recipient, &amount, &f.ItemIDs, &f.Reason, &f.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan transfer failure: %w", err)
		}
		f.Kind = model.TransferKind(kind)
		f.CreatedAt = f.CreatedAt.UTC()
		if amount != nil {
			if f.Amount, err = parseAmount(*amount); err != nil {
				return fmt.Errorf("transfer failure: %w", err)
			}
		}
		state.Failures = append(state.Failures, f)
	}
	return rows.Err()
}

// Commit writes a changeset in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, cs *model.Changeset) error {
	if cs == nil || cs.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for staker, acc := range cs.Accounts {
		queueAccount(batch, staker, acc)
	}
	if cs.Pool != nil {
		batch.Queue(`
			UPDATE reward_pool
			SET total_available = $1::text::numeric, last_distribution_time = $2
			WHERE id = 1
		`, amountText(cs.Pool.TotalAvailable), cs.Pool.LastDistributionTime)
	}
	for _, f := range cs.Funding {
		batch.Queue(`
			INSERT INTO funding_records (amount, sender, memo, created_at)
			VALUES ($1::text::numeric, $2, $3, $4)
		`, amountText(f.Amount), f.Sender, f.Memo, f.Timestamp)
	}
	for _, f := range cs.Failures {
		var amount *string
		if f.Amount != nil {
			a := f.Amount.Dec()
			amount = &a
		}
		itemIDs := f.ItemIDs
		if itemIDs == nil {
			itemIDs = []string{}
		}
		batch.Queue(`
			INSERT INTO transfer_failures (kind, recipient, amount, item_ids, reason, created_at)
			VALUES ($1, $2, $3::text::numeric, $4, $5, $6)
		`, string(f.Kind), f.Recipient, amount, itemIDs, f.Reason, f.CreatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write changeset: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit changeset: %w", err)
	}
	return nil
}

// queueAccount rewrites every stake row of the account. An account with no
// stakes and nothing claimed is removed.
func queueAccount(batch *pgx.Batch, staker string, acc *model.StakerAccount) {
	batch.Queue(`DELETE FROM stakes WHERE staker = $1`, staker)
	if acc == nil || (len(acc.Stakes) == 0 && acc.TotalRewardsClaimed.IsZero()) {
		batch.Queue(`DELETE FROM stakers WHERE staker = $1`, staker)
		return
	}

	batch.Queue(`
		INSERT INTO stakers (staker, total_rewards_claimed, updated_at)
		VALUES ($1, $2::text::numeric, NOW())
		ON CONFLICT (staker)
		DO UPDATE SET total_rewards_claimed = EXCLUDED.total_rewards_claimed, updated_at = NOW()
	`, staker, amountText(acc.TotalRewardsClaimed))

	for pos, rec := range acc.Stakes {
		types := make([]string, len(rec.ItemIDs))
		for i, id := range rec.ItemIDs {
			types[i] = string(rec.ItemTypes[id])
		}
		batch.Queue(`
			INSERT INTO stakes (staker, position, item_ids, item_types, weight, start_time, lockup_ns, accrued_reward, claimed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9)
		`, staker, pos, rec.ItemIDs, types, int64(rec.Weight), rec.StartTime, int64(rec.LockupDuration),
			amountText(rec.AccruedReward), rec.Claimed)
	}
}

func amountText(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrCorruptAmount, s)
	}
	return v, nil
}
