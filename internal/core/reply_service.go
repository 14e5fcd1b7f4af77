package core

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// ReplyRule maps a keyword to a canned assistant response. Rules are kept in
// document order; the first keyword found as a substring of the (lowercased)
// input wins.
type ReplyRule struct {
	Keyword string `toml:"keyword"`
	Reply   string `toml:"reply"`
}

type replyFile struct {
	Default string      `toml:"default"`
	Rules   []ReplyRule `toml:"rule"`
}

// ReplyService is the stubbed assistant: a keyword lookup with a default
// fallback. No model is involved.
type ReplyService struct {
	mu           sync.RWMutex
	rules        []ReplyRule
	defaultReply string

	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

func NewReplyService(logger *slog.Logger) *ReplyService {
	return &ReplyService{
		rules: []ReplyRule{
			{Keyword: "квантов", Reply: "Квантовая физика — это удивительная область науки!"},
		},
		defaultReply: "Отличный вопрос! Чем могу помочь?",
		logger:       logger,
	}
}

// Reply returns the canned response for text: the first rule whose keyword
// occurs in the lowercased input, or the default when nothing matches.
func (s *ReplyService) Reply(text string) string {
	lower := strings.ToLower(text)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rule := range s.rules {
		if rule.Keyword != "" && strings.Contains(lower, rule.Keyword) {
			return rule.Reply
		}
	}
	return s.defaultReply
}

// LoadFile replaces the rule table from a TOML file. The array-of-tables
// form preserves document order, which is the match tie-break.
func (s *ReplyService) LoadFile(path string) error {
	var parsed replyFile
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = parsed.Rules
	if parsed.Default != "" {
		s.defaultReply = parsed.Default
	}
	return nil
}

// Watch reloads the rule file whenever it changes on disk. Reload failures
// keep the previous table.
func (s *ReplyService) Watch(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := s.LoadFile(path); err != nil {
						s.logger.Warn("reply rules reload failed", "path", path, "error", err)
					} else {
						s.logger.Info("reply rules reloaded", "path", path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("reply rules watcher error", "error", err)
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *ReplyService) Close() {
	if s.watcher != nil {
		close(s.done)
		s.watcher.Close()
		s.watcher = nil
	}
}
