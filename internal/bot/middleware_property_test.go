package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"hive-staking/internal/config"
)

// TestOwnerPermissionCheckProperty checks a user is an owner if and only if
// their ID is configured.
func TestOwnerPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ownerIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 1, 10).Draw(t, "ownerIDs")
		cfg := &config.Config{Owner: config.OwnerConfig{TelegramIDs: ownerIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range ownerIDs {
			if id == userID {
				expected = true
				break
			}
		}
		if got := cfg.IsAdmin(userID); got != expected {
			t.Fatalf("owner check mismatch: userID=%d, ownerIDs=%v, expected=%v, got=%v",
				userID, ownerIDs, expected, got)
		}

		known := ownerIDs[rapid.IntRange(0, len(ownerIDs)-1).Draw(t, "ownerIndex")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("configured owner %d not recognized, ownerIDs=%v", known, ownerIDs)
		}
	})
}

// TestWhitelistEnforcementProperty checks group chats pass the gate if and
// only if they are whitelisted.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chatIDs := rapid.SliceOfN(rapid.Int64Range(-1000000000, -1), 1, 10).Draw(t, "chatIDs")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chatIDs}}
		gate := NewChatGate(cfg)

		chatID := rapid.Int64Range(-1000000000, -1).Draw(t, "chatID")
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range chatIDs {
			if id == chatID {
				expected = true
				break
			}
		}
		if got := gate.Allow(tele.ChatGroup, chatID, userID); got != expected {
			t.Fatalf("whitelist mismatch: chatID=%d, chats=%v, expected=%v, got=%v",
				chatID, chatIDs, expected, got)
		}
	})
}

// TestPrivateChatAccessProperty checks a private chat is answered only after
// the user has been seen in a whitelisted group.
func TestPrivateChatAccessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		group := rapid.Int64Range(-1000000000, -1).Draw(t, "group")
		gate := NewChatGate(&config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{group}}})

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if gate.Allow(tele.ChatPrivate, userID, userID) {
			t.Fatalf("unknown user %d allowed in private chat", userID)
		}

		gate.Allow(tele.ChatSuperGroup, group, userID)
		if !gate.Allow(tele.ChatPrivate, userID, userID) {
			t.Fatalf("user %d seen in group %d refused in private chat", userID, group)
		}

		other := rapid.Int64Range(1, 1000000000).Filter(func(id int64) bool { return id != userID }).Draw(t, "other")
		if gate.Allow(tele.ChatPrivate, other, other) {
			t.Fatalf("user %d allowed without being seen", other)
		}
	})
}

func TestChatGate_EmptyWhitelistAllowsAll(t *testing.T) {
	gate := NewChatGate(&config.Config{})
	assert.True(t, gate.Allow(tele.ChatPrivate, 5, 5))
	assert.True(t, gate.Allow(tele.ChatGroup, -100, 5))
}

// fakeContext implements only what the middleware touches.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	replies []string
}

func (c *fakeContext) Sender() *tele.User { return c.sender }
func (c *fakeContext) Text() string       { return "/distribute" }

func (c *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	c.replies = append(c.replies, what.(string))
	return nil
}

func TestOwnerMiddleware(t *testing.T) {
	cfg := &config.Config{Owner: config.OwnerConfig{TelegramIDs: []int64{42}}}
	called := 0
	h := OwnerMiddleware(cfg)(func(tele.Context) error {
		called++
		return nil
	})

	owner := &fakeContext{sender: &tele.User{ID: 42}}
	assert.NoError(t, h(owner))
	assert.Equal(t, 1, called)
	assert.Empty(t, owner.replies)

	stranger := &fakeContext{sender: &tele.User{ID: 7}}
	assert.NoError(t, h(stranger))
	assert.Equal(t, 1, called)
	assert.Len(t, stranger.replies, 1)
}

func TestRecoveryMiddleware(t *testing.T) {
	c := &fakeContext{sender: &tele.User{ID: 1}}
	h := RecoveryMiddleware()(func(tele.Context) error { panic("boom") })

	assert.NotPanics(t, func() { _ = h(c) })
	assert.Len(t, c.replies, 1)
}
