package core

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/auth"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/pubsub"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/store"
)

// Result is the envelope every account operation returns. Failures are
// reported through the flag, never as errors; callers branch on Success.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// User-facing operation messages.
const (
	MsgUsernameExists  = "Username already exists"
	MsgEmailExists     = "Email already exists"
	MsgRegistered      = "Account created successfully!"
	MsgInvalidLogin    = "Invalid username or password"
	MsgSignedIn        = "Signed in successfully!"
	MsgUpgraded        = "Upgraded to Pro Account!"
	MsgAccountDeleted  = "Account deleted successfully!"
	MsgNoActiveSession = "User not found"
)

// ChatPurger removes every chat owned by a user. Implemented by ChatService;
// wired in after construction because the chat store also consumes the
// session container this service owns.
type ChatPurger interface {
	DeleteChatsForUser(userID string)
}

// AuthService owns the user directory (slot of directory records) and the
// session store (slot holding the password-stripped projection of the
// current user). All mutation is serialized behind one mutex.
type AuthService struct {
	mu      sync.Mutex
	store   *store.SQLiteStore
	session *pubsub.Container[store.AuthState]
	chats   ChatPurger
	logger  *slog.Logger
}

func NewAuthService(kv *store.SQLiteStore, logger *slog.Logger) *AuthService {
	s := &AuthService{
		store:   kv,
		session: pubsub.NewContainer(store.AuthState{}),
		logger:  logger,
	}

	// Restore a persisted session, if any. A corrupt slot means "not
	// signed in", never a startup failure.
	var user store.User
	if kv.GetJSON(store.SlotCurrentUser, &user) && user.ID != "" {
		s.session.Next(store.AuthState{IsAuthenticated: true, User: &user})
	}
	return s
}

// AttachChatPurger wires the chat store in for account-deletion cascades.
func (s *AuthService) AttachChatPurger(p ChatPurger) {
	s.chats = p
}

// Session exposes the auth state container. Subscribers receive the current
// state immediately and every change thereafter.
func (s *AuthService) Session() *pubsub.Container[store.AuthState] {
	return s.session
}

// CurrentUser returns the session user, or nil when signed out.
func (s *AuthService) CurrentUser() *store.User {
	return s.session.Value().User
}

// Register creates a new free account and signs it in. Usernames and emails
// are unique ignoring case.
func (s *AuthService) Register(username, password, email string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return Result{Success: false, Message: MsgUsernameExists}
		}
	}
	if email != "" {
		for _, u := range users {
			if u.Email != "" && strings.EqualFold(u.Email, email) {
				return Result{Success: false, Message: MsgEmailExists}
			}
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("password hash failed", "username", username, "error", err)
		return Result{Success: false, Message: "Registration failed"}
	}

	now := time.Now()
	user := store.User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		CreatedAt:   now,
		LastLoginAt: now,
		AccountType: store.AccountFree,
	}

	users = append(users, store.StoredUser{User: user, PasswordHash: hash})
	s.store.SetJSON(store.SlotUsers, users)

	s.setCurrentUser(user)
	return Result{Success: true, Message: MsgRegistered}
}

// Login signs in an existing account. The failure message never reveals
// whether the username or the password was wrong.
func (s *AuthService) Login(username, password string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.loadUsers()
	for i, u := range users {
		if !strings.EqualFold(u.Username, username) {
			continue
		}
		if !auth.CheckPasswordHash(password, u.PasswordHash) {
			break
		}

		users[i].LastLoginAt = time.Now()
		s.store.SetJSON(store.SlotUsers, users)

		s.setCurrentUser(users[i].User)
		return Result{Success: true, Message: MsgSignedIn}
	}

	return Result{Success: false, Message: MsgInvalidLogin}
}

// Logout clears the session unconditionally; it always succeeds.
func (s *AuthService) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSession()
}

// UpgradeToProAccount promotes the signed-in user to pro. Upgrading an
// already-pro account reports the same success.
func (s *AuthService) UpgradeToProAccount() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.session.Value().User
	if current == nil {
		return Result{Success: false, Message: MsgNoActiveSession}
	}

	users := s.loadUsers()
	for i, u := range users {
		if u.ID == current.ID {
			users[i].AccountType = store.AccountPro
			s.store.SetJSON(store.SlotUsers, users)

			s.setCurrentUser(users[i].User)
			return Result{Success: true, Message: MsgUpgraded}
		}
	}
	return Result{Success: false, Message: "Failed to upgrade account"}
}

// DeleteAccount removes the signed-in user from the directory, deletes every
// chat they own, and signs them out.
func (s *AuthService) DeleteAccount() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.session.Value().User
	if current == nil {
		return Result{Success: false, Message: MsgNoActiveSession}
	}

	users := s.loadUsers()
	kept := users[:0]
	for _, u := range users {
		if u.ID != current.ID {
			kept = append(kept, u)
		}
	}
	s.store.SetJSON(store.SlotUsers, kept)

	if s.chats != nil {
		s.chats.DeleteChatsForUser(current.ID)
	}

	s.clearSession()
	return Result{Success: true, Message: MsgAccountDeleted}
}

func (s *AuthService) loadUsers() []store.StoredUser {
	var users []store.StoredUser
	s.store.GetJSON(store.SlotUsers, &users)
	return users
}

func (s *AuthService) setCurrentUser(user store.User) {
	s.store.SetJSON(store.SlotCurrentUser, user)
	s.session.Next(store.AuthState{IsAuthenticated: true, User: &user})
}

func (s *AuthService) clearSession() {
	s.store.Delete(store.SlotCurrentUser)
	s.session.Next(store.AuthState{})
}
