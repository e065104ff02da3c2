// Package handler provides Telegram bot command handlers for the staking
// engine. A Telegram user stakes under their decimal user ID.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"hive-staking/internal/item"
	"hive-staking/internal/model"
	"hive-staking/internal/pkg/lock"
	"hive-staking/internal/reward"
	"hive-staking/internal/service"
)

const lockTimeout = 5 * time.Second

// Engine is the part of the staking service the bot drives.
type Engine interface {
	Stake(ctx context.Context, staker string, itemIDs []string) (uuid.UUID, error)
	Claim(ctx context.Context, staker string, index int) (*uint256.Int, error)
	Unstake(ctx context.Context, staker string, index int) ([]string, error)
	Distribute(ctx context.Context, caller string, amount *uint256.Int) (*reward.Plan, error)
	GetStakingInfo(staker string) []model.StakeSummary
	GetTotalClaimed(staker string) *uint256.Int
	GetPoolStatus() service.PoolStatus
	GetTopStakers(limit int) []service.StakerRank
}

// StakingHandler handles staker and owner commands.
type StakingHandler struct {
	engine   Engine
	owner    string
	userLock *lock.KeyLock
}

// NewStakingHandler creates a new StakingHandler. owner is the identity
// owner commands act as; the caller gates who may run them.
func NewStakingHandler(engine Engine, owner string, userLock *lock.KeyLock) *StakingHandler {
	return &StakingHandler{
		engine:   engine,
		owner:    owner,
		userLock: userLock,
	}
}

// StakerID returns the staking identity of a Telegram user.
func StakerID(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// HandleStart handles /start and /help.
func (h *StakingHandler) HandleStart(c tele.Context) error {
	var b strings.Builder
	b.WriteString("🐝 Hive staking\n\n")
	b.WriteString("Reward weights:\n")
	for _, cfg := range item.GetAllItems() {
		fmt.Fprintf(&b, "%s %s: %d (%s)\n", cfg.Emoji, cfg.Type, cfg.Weight, cfg.Description)
	}
	b.WriteString("\nCommands:\n" +
		"/stake <item> [item...] - stake items\n" +
		"/stakes - list your stakes\n" +
		"/claim <index> - claim a stake's reward\n" +
		"/unstake <index> - withdraw a stake after its lockup\n" +
		"/pool - reward pool status\n" +
		"/top - largest stakers")
	return c.Reply(b.String())
}

// HandleStake handles /stake <item> [item...].
// Ownership is verified with the registry before the stake opens.
func (h *StakingHandler) HandleStake(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	itemIDs := c.Args()
	if len(itemIDs) == 0 {
		return c.Reply("Usage: /stake <item> [item...]")
	}

	staker := StakerID(sender.ID)
	var requestID uuid.UUID
	err := h.withStakerLock(staker, func(ctx context.Context) error {
		var err error
		requestID, err = h.engine.Stake(ctx, staker, itemIDs)
		return err
	})
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	return c.Reply(fmt.Sprintf(
		"⏳ Verifying %d item(s) with the registry\n"+
			"Request: %s\n\n"+
			"Check /stakes once verification completes.",
		len(itemIDs), requestID,
	))
}

// HandleStakes handles /stakes.
func (h *StakingHandler) HandleStakes(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	staker := StakerID(sender.ID)
	return c.Reply(FormatStakes(h.engine.GetStakingInfo(staker), h.engine.GetTotalClaimed(staker), time.Now()))
}

// HandleClaim handles /claim <index>.
func (h *StakingHandler) HandleClaim(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	index, err := parseIndex(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}

	staker := StakerID(sender.ID)
	var amount *uint256.Int
	err = h.withStakerLock(staker, func(ctx context.Context) error {
		var err error
		amount, err = h.engine.Claim(ctx, staker, index)
		return err
	})
	if errors.Is(err, model.ErrExternalCallFailed) && amount != nil {
		return c.Reply(fmt.Sprintf(
			"⚠️ Claimed %s, but the payout failed.\nIt has been recorded for manual settlement.",
			amount.Dec(),
		))
	}
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(fmt.Sprintf("✅ Claimed %s from stake #%d", amount.Dec(), index))
}

// HandleUnstake handles /unstake <index>.
func (h *StakingHandler) HandleUnstake(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	index, err := parseIndex(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}

	staker := StakerID(sender.ID)
	var itemIDs []string
	err = h.withStakerLock(staker, func(ctx context.Context) error {
		var err error
		itemIDs, err = h.engine.Unstake(ctx, staker, index)
		return err
	})
	if errors.Is(err, model.ErrExternalCallFailed) && itemIDs != nil {
		return c.Reply(fmt.Sprintf(
			"⚠️ Stake #%d removed, but returning %s failed.\nIt has been recorded for manual settlement.",
			index, strings.Join(itemIDs, ", "),
		))
	}
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	return c.Reply(fmt.Sprintf(
		"✅ Stake #%d removed\nReturned: %s\n\nRemaining stakes may have been renumbered, see /stakes.",
		index, strings.Join(itemIDs, ", "),
	))
}

// HandlePool handles /pool.
func (h *StakingHandler) HandlePool(c tele.Context) error {
	return c.Reply(FormatPool(h.engine.GetPoolStatus()))
}

// HandleTop handles /top.
func (h *StakingHandler) HandleTop(c tele.Context) error {
	return c.Reply(FormatTop(h.engine.GetTopStakers(10)))
}

// HandleDistribute handles /distribute [amount]. Owner only.
func (h *StakingHandler) HandleDistribute(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var amount *uint256.Int
	if args := c.Args(); len(args) > 0 {
		v, err := uint256.FromDecimal(args[0])
		if err != nil || v.IsZero() {
			return c.Reply("❌ Amount must be a positive integer")
		}
		amount = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	plan, err := h.engine.Distribute(ctx, h.owner, amount)
	if err != nil {
		return c.Reply(errorMessage(err))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("distributed", plan.Distributed.Dec()).
		Str("operation", "distribute").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ Distributed %s to %d stake(s)\n"+
			"Total weight: %d\n"+
			"Left in pool from rounding: %s",
		plan.Distributed.Dec(), len(plan.Credits), plan.TotalWeight, plan.Remainder().Dec(),
	))
}

// withStakerLock serializes commands of one staker so a double tap cannot
// race itself.
func (h *StakingHandler) withStakerLock(staker string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*lockTimeout)
	defer cancel()
	return h.userLock.WithLockContext(ctx, staker, lockTimeout, func() error {
		return fn(ctx)
	})
}
