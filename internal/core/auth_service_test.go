package core_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/core"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/store"
)

func newTestServices(t *testing.T, replyDelay time.Duration) (*core.AuthService, *core.ChatService, *store.SQLiteStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	authService := core.NewAuthService(kv, logger)
	chatService := core.NewChatService(kv, core.NewReplyService(logger), authService.Session(), replyDelay, logger)
	t.Cleanup(chatService.Close)
	authService.AttachChatPurger(chatService)

	return authService, chatService, kv
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(s *core.AuthService)
		username    string
		email       string
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "successful registration",
			username:    "alice",
			wantSuccess: true,
			wantMessage: core.MsgRegistered,
		},
		{
			name: "duplicate username ignoring case",
			setup: func(s *core.AuthService) {
				s.Register("Alice", "pw123456", "")
			},
			username:    "alice",
			wantSuccess: false,
			wantMessage: core.MsgUsernameExists,
		},
		{
			name: "duplicate email ignoring case",
			setup: func(s *core.AuthService) {
				s.Register("bob", "pw123456", "Bob@Example.com")
			},
			username:    "carol",
			email:       "bob@example.com",
			wantSuccess: false,
			wantMessage: core.MsgEmailExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, _, _ := newTestServices(t, time.Millisecond)
			if tt.setup != nil {
				tt.setup(authService)
			}

			res := authService.Register(tt.username, "pw123456", tt.email)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantMessage, res.Message)
		})
	}
}

func TestRegister_DuplicateLeavesOneRecord(t *testing.T) {
	authService, _, kv := newTestServices(t, time.Millisecond)

	require.True(t, authService.Register("alice", "pw123456", "").Success)
	require.False(t, authService.Register("ALICE", "other", "").Success)

	var users []store.StoredUser
	require.True(t, kv.GetJSON(store.SlotUsers, &users))
	assert.Len(t, users, 1)
}

func TestRegister_EstablishesSession(t *testing.T) {
	authService, _, _ := newTestServices(t, time.Millisecond)

	authService.Register("alice", "pw123456", "")

	state := authService.Session().Value()
	require.True(t, state.IsAuthenticated)
	require.NotNil(t, state.User)
	assert.Equal(t, "alice", state.User.Username)
	assert.Equal(t, store.AccountFree, state.User.AccountType)
}

func TestRegister_NeverStoresPlaintextPassword(t *testing.T) {
	authService, _, kv := newTestServices(t, time.Millisecond)

	authService.Register("alice", "pw123456", "")

	raw, ok := kv.Get(store.SlotUsers)
	require.True(t, ok)
	assert.NotContains(t, raw, "pw123456")

	var users []store.StoredUser
	require.True(t, kv.GetJSON(store.SlotUsers, &users))
	assert.True(t, strings.HasPrefix(users[0].PasswordHash, "$2"))
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		wantSuccess bool
	}{
		{"matching credentials", "alice", "pw123456", true},
		{"username case differs", "ALICE", "pw123456", true},
		{"wrong password", "alice", "nope", false},
		{"unknown user", "mallory", "pw123456", false},
		{"password case differs", "alice", "PW123456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, _, _ := newTestServices(t, time.Millisecond)
			require.True(t, authService.Register("alice", "pw123456", "").Success)
			authService.Logout()

			res := authService.Login(tt.username, tt.password)
			assert.Equal(t, tt.wantSuccess, res.Success)
			if !tt.wantSuccess {
				// One generic message regardless of which part mismatched.
				assert.Equal(t, core.MsgInvalidLogin, res.Message)
			}
		})
	}
}

func TestLogin_UpdatesLastLogin(t *testing.T) {
	authService, _, kv := newTestServices(t, time.Millisecond)

	authService.Register("alice", "pw123456", "")
	var before []store.StoredUser
	require.True(t, kv.GetJSON(store.SlotUsers, &before))
	authService.Logout()

	time.Sleep(5 * time.Millisecond)
	require.True(t, authService.Login("alice", "pw123456").Success)

	var after []store.StoredUser
	require.True(t, kv.GetJSON(store.SlotUsers, &after))
	assert.True(t, after[0].LastLoginAt.After(before[0].LastLoginAt))
}

func TestLogout_AlwaysClearsSession(t *testing.T) {
	authService, _, kv := newTestServices(t, time.Millisecond)

	authService.Register("alice", "pw123456", "")
	authService.Logout()

	state := authService.Session().Value()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.User)
	_, ok := kv.Get(store.SlotCurrentUser)
	assert.False(t, ok)

	// Logging out signed-out is fine too.
	authService.Logout()
	assert.False(t, authService.Session().Value().IsAuthenticated)
}

func TestUpgradeToProAccount(t *testing.T) {
	authService, _, kv := newTestServices(t, time.Millisecond)

	res := authService.UpgradeToProAccount()
	assert.False(t, res.Success)
	assert.Equal(t, core.MsgNoActiveSession, res.Message)

	authService.Register("alice", "pw123456", "")

	res = authService.UpgradeToProAccount()
	require.True(t, res.Success)
	assert.Equal(t, store.AccountPro, authService.CurrentUser().AccountType)

	var users []store.StoredUser
	require.True(t, kv.GetJSON(store.SlotUsers, &users))
	assert.Equal(t, store.AccountPro, users[0].AccountType)

	// Idempotent under repetition.
	res = authService.UpgradeToProAccount()
	assert.True(t, res.Success)
	assert.Equal(t, core.MsgUpgraded, res.Message)
	assert.Equal(t, store.AccountPro, authService.CurrentUser().AccountType)
}

func TestDeleteAccount_CascadesToChats(t *testing.T) {
	authService, chatService, kv := newTestServices(t, time.Millisecond)

	res := authService.DeleteAccount()
	assert.False(t, res.Success)

	authService.Register("alice", "pw123456", "")
	aliceID := authService.CurrentUser().ID
	chatService.Send("hello there")
	authService.Logout()

	authService.Register("bob", "pw123456", "")
	chatService.Send("bob's chat")

	res = authService.DeleteAccount()
	require.True(t, res.Success)

	state := authService.Session().Value()
	assert.False(t, state.IsAuthenticated)

	var users []store.StoredUser
	require.True(t, kv.GetJSON(store.SlotUsers, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	// Only bob's chats are gone; alice keeps hers.
	var chats []store.Chat
	require.True(t, kv.GetJSON(store.SlotChats, &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, aliceID, chats[0].UserID)
}

func TestSessionRestoredFromStorage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	first := core.NewAuthService(kv, logger)
	first.Register("alice", "pw123456", "")

	second := core.NewAuthService(kv, logger)
	state := second.Session().Value()
	require.True(t, state.IsAuthenticated)
	assert.Equal(t, "alice", state.User.Username)
}
