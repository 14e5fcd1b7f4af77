package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/api"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/config"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/core"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logging
	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "DEBUG") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize the slot store
	kv, err := store.NewSQLiteStore(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	// Reply generator, optionally backed by a hot-reloaded rules file
	replyService := core.NewReplyService(logger)
	defer replyService.Close()
	if cfg.RepliesFile != "" {
		if err := replyService.LoadFile(cfg.RepliesFile); err != nil {
			logger.Error("failed to load reply rules", "path", cfg.RepliesFile, "error", err)
			os.Exit(1)
		}
		if err := replyService.Watch(cfg.RepliesFile); err != nil {
			logger.Warn("reply rules will not hot-reload", "error", err)
		}
	}

	// State services, wired explicitly; no package-level singletons
	authService := core.NewAuthService(kv, logger)
	chatService := core.NewChatService(kv, replyService, authService.Session(), cfg.ReplyDelay, logger)
	defer chatService.Close()
	authService.AttachChatPurger(chatService)
	themeService := core.NewThemeService(kv, logger)

	// Event stream for the views
	hub := api.NewEventHub(logger)
	go hub.Run()
	hub.BindContainers(authService.Session(), chatService.Chats(), chatService.ActiveID(), themeService.Theme())

	// API handler and router
	apiHandler := api.NewAPIHandler(authService, chatService, themeService, hub, cfg.JWTSecret, logger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not listen", "addr", serverAddr, "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exiting gracefully")
}
