package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Slot keys. Kept byte-compatible with the browser build so an exported
// localStorage dump can be imported as-is.
const (
	SlotUsers       = "chatgpt-ui-users"
	SlotCurrentUser = "chatgpt-ui-current-user"
	SlotChats       = "chatgpt-ui-chats-v1"
	SlotCurrentID   = "chatgpt-ui-current-id-v1"
	SlotTheme       = "chatgpt-ui-theme"
)

// SQLiteStore is a string-keyed slot store: synchronous get/set/remove, no
// transactions spanning slots, no expiry. Reads degrade to "no data" and
// writes are best-effort; callers never see persistence failures.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dataSourceName string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS slots (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the raw value stored under key, and whether it was present.
func (s *SQLiteStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM slots WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("slot read failed, treating as empty", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

// Set stores value under key, replacing any previous value. Write failures
// are logged and swallowed; in-memory state runs ahead of persisted state
// until a later write succeeds.
func (s *SQLiteStore) Set(key, value string) {
	_, err := s.db.Exec("INSERT INTO slots (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
	if err != nil {
		s.logger.Warn("slot write failed", "key", key, "error", err)
	}
}

// Delete removes the slot entirely. Absent keys are not an error.
func (s *SQLiteStore) Delete(key string) {
	if _, err := s.db.Exec("DELETE FROM slots WHERE key = ?", key); err != nil {
		s.logger.Warn("slot delete failed", "key", key, "error", err)
	}
}

// GetJSON decodes the slot into out. Missing or corrupt data leaves out
// untouched and reports false.
func (s *SQLiteStore) GetJSON(key string, out any) bool {
	raw, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("slot holds corrupt JSON, treating as empty", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func (s *SQLiteStore) SetJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("slot encode failed", "key", key, "error", err)
		return
	}
	s.Set(key, string(data))
}
