package bot

import (
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"hive-staking/internal/config"
)

// ChatGate decides which chats the bot answers. Users seen in a whitelisted
// group may also use the bot in private chat.
type ChatGate struct {
	cfg *config.Config

	mu    sync.RWMutex
	known map[int64]bool
}

// NewChatGate creates a gate over the configured whitelist.
func NewChatGate(cfg *config.Config) *ChatGate {
	return &ChatGate{cfg: cfg, known: make(map[int64]bool)}
}

// Allow reports whether a message from userID in the given chat is handled.
func (g *ChatGate) Allow(chatType tele.ChatType, chatID, userID int64) bool {
	if chatType == tele.ChatPrivate {
		g.mu.RLock()
		known := g.known[userID]
		g.mu.RUnlock()
		return known || len(g.cfg.Whitelist.Chats) == 0
	}

	if !g.cfg.IsChatAllowed(chatID) {
		return false
	}
	g.mu.Lock()
	g.known[userID] = true
	g.mu.Unlock()
	return true
}

// WhitelistMiddleware ignores messages the gate does not allow.
func WhitelistMiddleware(gate *ChatGate) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()
			if chat == nil || sender == nil {
				return nil
			}
			if !gate.Allow(chat.Type, chat.ID, sender.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Int64("user_id", sender.ID).
					Msg("Ignoring message from non-whitelisted chat")
				return nil
			}
			return next(c)
		}
	}
}

// OwnerMiddleware restricts a handler group to the owner's Telegram accounts.
func OwnerMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-owner attempted owner command")
				return c.Reply("❌ Permission denied: owner only")
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug()
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			ev.Str("text", c.Text()).Msg("Received message")
			return next(c)
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Internal error, please try again later")
				}
			}()
			return next(c)
		}
	}
}
