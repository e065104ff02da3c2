// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"hive-staking/internal/config"
	"hive-staking/internal/handler"
	"hive-staking/internal/pkg/lock"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot  *tele.Bot
	cfg  *config.Config
	gate *ChatGate

	stakingHandler *handler.StakingHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Engine   handler.Engine
	UserLock *lock.KeyLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		gate:           NewChatGate(deps.Config),
		stakingHandler: handler.NewStakingHandler(deps.Engine, deps.Config.Owner.ID, deps.UserLock),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.gate))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	h := b.stakingHandler

	b.bot.Handle("/start", h.HandleStart)
	b.bot.Handle("/help", h.HandleStart)
	b.bot.Handle("/stake", h.HandleStake)
	b.bot.Handle("/stakes", h.HandleStakes)
	b.bot.Handle("/claim", h.HandleClaim)
	b.bot.Handle("/unstake", h.HandleUnstake)
	b.bot.Handle("/pool", h.HandlePool)
	b.bot.Handle("/top", h.HandleTop)

	ownerGroup := b.bot.Group()
	ownerGroup.Use(OwnerMiddleware(b.cfg))
	ownerGroup.Handle("/distribute", h.HandleDistribute)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
