package core

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/pubsub"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/store"
)

// DefaultChatTitle is the placeholder title until the first message derives
// a real one.
const DefaultChatTitle = "New chat"

// ChatService owns the ordered chat collection (most-recent-first) and the
// active-chat-id slot. The published chat list is filtered to the session
// user; chats of other accounts stay in storage but are never visible.
//
// The assistant reply is a one-shot scheduled task per send, keyed by chat
// id so that deleting a chat cancels its pending replies instead of
// resurrecting the chat.
type ChatService struct {
	mu      sync.Mutex
	store   *store.SQLiteStore
	replies *ReplyService
	session *pubsub.Container[store.AuthState]
	delay   time.Duration
	logger  *slog.Logger

	chats    []store.Chat
	visible  *pubsub.Container[[]store.Chat]
	activeID *pubsub.Container[string]

	timers   map[string]map[uint64]*time.Timer
	timerSeq uint64
	closed   bool

	unsubscribe func()
}

func NewChatService(kv *store.SQLiteStore, replies *ReplyService, session *pubsub.Container[store.AuthState], replyDelay time.Duration, logger *slog.Logger) *ChatService {
	s := &ChatService{
		store:   kv,
		replies: replies,
		session: session,
		delay:   replyDelay,
		logger:  logger,
		timers:  make(map[string]map[uint64]*time.Timer),
	}

	kv.GetJSON(store.SlotChats, &s.chats)
	current, _ := kv.Get(store.SlotCurrentID)

	s.visible = pubsub.NewContainer(s.filtered())
	s.activeID = pubsub.NewContainer(current)

	// Re-filter whenever the session changes; an active chat the new
	// session user does not own is dropped back to the welcome state.
	s.unsubscribe = session.Subscribe(func(st store.AuthState) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if id := s.activeID.Value(); id != "" && !s.owned(id) {
			s.activeID.Next("")
		}
		s.visible.Next(s.filtered())
	})
	return s
}

// Close cancels all pending assistant replies and detaches from the session.
func (s *ChatService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, byID := range s.timers {
		for _, t := range byID {
			t.Stop()
		}
	}
	s.timers = make(map[string]map[uint64]*time.Timer)
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Chats exposes the per-user chat list container.
func (s *ChatService) Chats() *pubsub.Container[[]store.Chat] {
	return s.visible
}

// ActiveID exposes the active-chat-id container; empty string means none.
func (s *ChatService) ActiveID() *pubsub.Container[string] {
	return s.activeID
}

// ActiveMessages returns the message list of the active chat, or nil when
// there is no active chat.
func (s *ChatService) ActiveMessages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.activeID.Value()
	if id == "" {
		return nil
	}
	for _, c := range s.chats {
		if c.ID == id {
			return c.Messages
		}
	}
	return nil
}

// NewChat creates an empty chat owned by the session user, makes it active,
// and returns its id. Without a signed-in user there is nothing to own the
// chat and the call is a no-op returning "".
func (s *ChatService) NewChat(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newChat(title)
}

func (s *ChatService) newChat(title string) string {
	user := s.session.Value().User
	if user == nil {
		return ""
	}
	if title == "" {
		title = DefaultChatTitle
	}

	chat := store.Chat{
		ID:     uuid.NewString(),
		Title:  title,
		UserID: user.ID,
	}
	s.chats = append([]store.Chat{chat}, s.chats...)

	s.activeID.Next(chat.ID)
	s.store.Set(store.SlotCurrentID, chat.ID)
	s.publish()
	return chat.ID
}

// SelectChat makes id the active chat. Selecting the current chat changes
// nothing and skips the write.
func (s *ChatService) SelectChat(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID.Value() != id {
		s.activeID.Next(id)
		s.store.Set(store.SlotCurrentID, id)
	}
}

// RenameChat replaces the title of the matching chat; unknown ids are a
// no-op.
func (s *ChatService) RenameChat(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chats {
		if s.chats[i].ID == id {
			s.chats[i].Title = title
			s.publish()
			return
		}
	}
}

// DeleteChat removes the chat and cancels any reply still scheduled for it.
// Deleting the active chat returns the UI to the welcome state.
func (s *ChatService) DeleteChat(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chats[:0]
	found := false
	for _, c := range s.chats {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return
	}
	s.chats = kept

	s.cancelReplies(id)
	if s.activeID.Value() == id {
		s.activeID.Next("")
		s.store.Set(store.SlotCurrentID, "")
	}
	s.publish()
}

// Send appends a user message to the active chat, creating one when none is
// active, and schedules the assistant reply. The user message is visible
// and persisted before Send returns; the reply lands after the configured
// delay, unless the chat is deleted first.
func (s *ChatService) Send(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.activeID.Value()
	idx := s.indexOf(id)
	if idx == -1 {
		id = s.newChat("")
		if id == "" {
			return
		}
		idx = s.indexOf(id)
	}

	userMsg := store.Message{
		ID:        uuid.NewString(),
		Author:    store.AuthorUser,
		Content:   text,
		Timestamp: time.Now(),
	}
	s.chats[idx].Messages = append(s.chats[idx].Messages, userMsg)

	if len(s.chats[idx].Messages) == 1 && s.chats[idx].Title == DefaultChatTitle {
		s.chats[idx].Title = generateTitle(text)
	}
	s.publish()

	reply := s.replies.Reply(text)
	s.scheduleReply(id, reply)
}

// scheduleReply arms a one-shot timer for the assistant message. Caller
// holds the lock, so the callback cannot run before the timer is tracked.
func (s *ChatService) scheduleReply(chatID, content string) {
	if s.closed {
		return
	}
	s.timerSeq++
	seq := s.timerSeq

	t := time.AfterFunc(s.delay, func() {
		s.appendReply(chatID, seq, content)
	})
	if s.timers[chatID] == nil {
		s.timers[chatID] = make(map[uint64]*time.Timer)
	}
	s.timers[chatID][seq] = t
}

func (s *ChatService) appendReply(chatID string, seq uint64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byID := s.timers[chatID]; byID != nil {
		delete(byID, seq)
		if len(byID) == 0 {
			delete(s.timers, chatID)
		}
	}
	if s.closed {
		return
	}

	idx := s.indexOf(chatID)
	if idx == -1 {
		// Chat vanished between send and reply; drop it.
		s.logger.Debug("skipping reply for deleted chat", "chatID", chatID)
		return
	}

	s.chats[idx].Messages = append(s.chats[idx].Messages, store.Message{
		ID:        uuid.NewString(),
		Author:    store.AuthorAssistant,
		Content:   content,
		Timestamp: time.Now(),
	})
	s.publish()
}

func (s *ChatService) cancelReplies(chatID string) {
	for _, t := range s.timers[chatID] {
		t.Stop()
	}
	delete(s.timers, chatID)
}

// DeleteChatsForUser drops every chat owned by userID, cancelling their
// pending replies. Used by the account-deletion cascade.
func (s *ChatService) DeleteChatsForUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeID.Value()
	kept := s.chats[:0]
	for _, c := range s.chats {
		if c.UserID == userID {
			s.cancelReplies(c.ID)
			if c.ID == active {
				s.activeID.Next("")
				s.store.Delete(store.SlotCurrentID)
			}
			continue
		}
		kept = append(kept, c)
	}
	s.chats = kept
	s.publish()
}

func (s *ChatService) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.chats {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *ChatService) owned(chatID string) bool {
	user := s.session.Value().User
	if user == nil {
		return false
	}
	for _, c := range s.chats {
		if c.ID == chatID {
			return c.UserID == user.ID
		}
	}
	return false
}

// filtered returns the session user's chats, preserving order. Chats with
// no owner (legacy imports) are never shown.
func (s *ChatService) filtered() []store.Chat {
	user := s.session.Value().User
	if user == nil {
		return []store.Chat{}
	}
	out := []store.Chat{}
	for _, c := range s.chats {
		if c.UserID == user.ID {
			out = append(out, c)
		}
	}
	return out
}

// publish persists the full collection and pushes the filtered view.
func (s *ChatService) publish() {
	s.store.SetJSON(store.SlotChats, s.chats)
	s.visible.Next(s.filtered())
}

// generateTitle derives a chat title from the first message: trim, collapse
// whitespace, and cut to 30 characters with an ellipsis when longer.
func generateTitle(text string) string {
	clean := strings.Join(strings.Fields(text), " ")
	runes := []rune(clean)
	if len(runes) <= 30 {
		return clean
	}
	return strings.TrimSpace(string(runes[:30])) + "..."
}
