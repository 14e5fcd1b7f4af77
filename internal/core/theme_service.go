package core

import (
	"log/slog"
	"sync"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/pubsub"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/store"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// ThemeService holds the UI theme preference, persisted as a raw slot value.
type ThemeService struct {
	mu     sync.Mutex
	store  *store.SQLiteStore
	theme  *pubsub.Container[string]
	logger *slog.Logger
}

func NewThemeService(kv *store.SQLiteStore, logger *slog.Logger) *ThemeService {
	theme := ThemeDark
	if saved, ok := kv.Get(store.SlotTheme); ok && (saved == ThemeLight || saved == ThemeDark) {
		theme = saved
	}
	return &ThemeService{
		store:  kv,
		theme:  pubsub.NewContainer(theme),
		logger: logger,
	}
}

// Theme exposes the theme container.
func (s *ThemeService) Theme() *pubsub.Container[string] {
	return s.theme
}

// Set switches to the given theme; unknown names are ignored.
func (s *ThemeService) Set(theme string) {
	if theme != ThemeLight && theme != ThemeDark {
		s.logger.Warn("ignoring unknown theme", "theme", theme)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.theme.Value() == theme {
		return
	}
	s.theme.Next(theme)
	s.store.Set(store.SlotTheme, theme)
}

// Toggle flips between light and dark.
func (s *ThemeService) Toggle() {
	if s.theme.Value() == ThemeDark {
		s.Set(ThemeLight)
	} else {
		s.Set(ThemeDark)
	}
}
