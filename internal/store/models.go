package store

import "time"

// Account tiers. Accounts only ever advance free -> pro.
const (
	AccountFree = "free"
	AccountPro  = "pro"
)

// Message authors.
const (
	AuthorUser      = "user"
	AuthorAssistant = "assistant"
)

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	AccountType string    `json:"accountType"`
}

// StoredUser is the directory record. The hash never leaves the store
// boundary; session projections hand out User only.
type StoredUser struct {
	User
	PasswordHash string `json:"password"`
}

type AuthState struct {
	IsAuthenticated bool  `json:"isAuthenticated"`
	User            *User `json:"user"`
}

type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Chat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	UserID   string    `json:"userId,omitempty"`
}
