package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"hive-staking/internal/item"
	"hive-staking/internal/model"
	"hive-staking/internal/pkg/lock"
	"hive-staking/internal/service"
)

func parseIndex(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("Usage: <command> <index>")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil || index < 0 {
		return 0, fmt.Errorf("❌ Invalid stake index %q", args[0])
	}
	return index, nil
}

// errorMessage turns an engine error into a chat reply.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, lock.ErrLockTimeout):
		return "⏳ Another command of yours is still running, try again shortly"
	case errors.Is(err, model.ErrUnauthorized):
		return "❌ Permission denied"
	case errors.Is(err, model.ErrNotFound):
		return "❌ You have no stakes"
	case errors.Is(err, model.ErrIndexOutOfRange):
		return "❌ No stake with that index, see /stakes"
	case errors.Is(err, model.ErrLockupActive):
		return "🔒 This stake is still locked"
	case errors.Is(err, model.ErrNothingToClaim):
		return "❌ Nothing to claim on this stake"
	case errors.Is(err, model.ErrNothingToDistribute):
		return "❌ No eligible stakes to distribute to"
	case errors.Is(err, model.ErrInsufficientPool):
		return "❌ The reward pool does not hold that much"
	case errors.Is(err, model.ErrDistributionNotDue):
		return "⏳ The next distribution is not due yet"
	case errors.Is(err, model.ErrItemAlreadyStaked):
		return "❌ An item is already staked or being verified"
	case errors.Is(err, model.ErrInvalidInput):
		return "❌ Invalid input: " + err.Error()
	case errors.Is(err, model.ErrExternalCallFailed):
		return "❌ The registry could not be reached, try again later"
	}
	return "❌ Operation failed, try again later"
}

// FormatStakes renders a staker's stakes.
func FormatStakes(stakes []model.StakeSummary, totalClaimed *uint256.Int, now time.Time) string {
	if len(stakes) == 0 {
		return "You have no stakes. Use /stake <item> to start."
	}

	var b strings.Builder
	b.WriteString("📋 Your stakes\n━━━━━━━━━━━━━━━\n")
	for _, s := range stakes {
		fmt.Fprintf(&b, "#%d  %s %d  %s %d  %s %d  (weight %d)\n",
			s.Index,
			item.Catalogue[model.ItemQueen].Emoji, s.Queen,
			item.Catalogue[model.ItemWorker].Emoji, s.Worker,
			item.Catalogue[model.ItemDrone].Emoji, s.Drone,
			s.Weight,
		)
		fmt.Fprintf(&b, "    Unclaimed: %s\n", s.UnclaimedReward.Dec())
		unlock := s.StartTime.Add(time.Duration(s.LockupDuration) * time.Second)
		if now.Before(unlock) {
			fmt.Fprintf(&b, "    🔒 Locked for %s\n", FormatDuration(unlock.Sub(now)))
		} else {
			b.WriteString("    🔓 Unlocked\n")
		}
		if s.Claimed {
			b.WriteString("    Closed for rewards\n")
		}
	}
	if totalClaimed != nil {
		fmt.Fprintf(&b, "━━━━━━━━━━━━━━━\nTotal claimed: %s", totalClaimed.Dec())
	}
	return b.String()
}

// FormatPool renders the pool status.
func FormatPool(st service.PoolStatus) string {
	return fmt.Sprintf(
		"💰 Reward pool\n━━━━━━━━━━━━━━━\n"+
			"Available: %s\n"+
			"Policy: %s\n"+
			"Stakers: %d  Stakes: %d\n"+
			"Last distribution: %s\n"+
			"Next due in: %s",
		st.Available.Dec(), st.Policy, st.Stakers, st.Stakes,
		st.LastDistributionTime.UTC().Format("2006-01-02 15:04 MST"),
		FormatDuration(st.UntilNext),
	)
}

// FormatDuration renders d in days, hours and minutes.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatTop renders the staker leaderboard.
func FormatTop(ranks []service.StakerRank) string {
	if len(ranks) == 0 {
		return "🏆 No stakers yet"
	}

	var b strings.Builder
	b.WriteString("🏆 Top stakers\n━━━━━━━━━━━━━━━\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, r := range ranks {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		fmt.Fprintf(&b, "%s %s  weight %d  stakes %d  claimed %s\n",
			rank, r.Staker, r.Weight, r.Stakes, r.TotalClaimed.Dec())
	}
	return strings.TrimRight(b.String(), "\n")
}
