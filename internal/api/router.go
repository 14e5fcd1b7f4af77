package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Session-guarded routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.SessionGuardMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Get("/session", apiHandler.SessionHandler)

			// Account routes
			r.Post("/account/upgrade", apiHandler.UpgradeAccountHandler)
			r.Delete("/account", apiHandler.DeleteAccountHandler)

			// Chat routes
			r.Get("/chats", apiHandler.ListChatsHandler)
			r.Post("/chats", apiHandler.CreateChatHandler)
			r.Post("/chats/{chatID}/select", apiHandler.SelectChatHandler)
			r.Patch("/chats/{chatID}", apiHandler.RenameChatHandler)
			r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)
			r.Post("/messages", apiHandler.SendMessageHandler)

			// Preferences
			r.Get("/theme", apiHandler.GetThemeHandler)
			r.Put("/theme", apiHandler.SetThemeHandler)

			// State event stream
			r.Get("/ws", apiHandler.WebSocketHandler)
		})
	})

	return r
}
