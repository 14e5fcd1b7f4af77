package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/drozhzhin-n-e/chatgpt-ui/internal/auth"
	"github.com/drozhzhin-n-e/chatgpt-ui/internal/core"
)

type APIHandler struct {
	authService  *core.AuthService
	chatService  *core.ChatService
	themeService *core.ThemeService
	hub          *EventHub
	jwtSecret    string
	logger       *slog.Logger
}

func NewAPIHandler(as *core.AuthService, cs *core.ChatService, ts *core.ThemeService, hub *EventHub, jwtSecret string, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		authService:  as,
		chatService:  cs,
		themeService: ts,
		hub:          hub,
		jwtSecret:    jwtSecret,
		logger:       logger,
	}
}

// SessionGuardMiddleware is the route guard: requests pass iff the bearer
// token is valid and the session it names is the authenticated one. The SPA
// treats a 401 as "navigate to login".
func (h *APIHandler) SessionGuardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on WebSocket upgrades, so the
		// token may arrive as a query parameter instead.
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			http.Error(w, "Authorization is required", http.StatusUnauthorized)
			return
		}

		userID, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		state := h.authService.Session().Value()
		if !state.IsAuthenticated || state.User == nil || state.User.ID != userID {
			http.Error(w, "No active session", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type authResponse struct {
	core.Result
	Token string `json:"token,omitempty"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	res := h.authService.Register(req.Username, req.Password, req.Email)
	if !res.Success {
		writeJSON(w, http.StatusConflict, authResponse{Result: res})
		return
	}

	h.respondWithToken(w, http.StatusCreated, res)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	res := h.authService.Login(req.Username, req.Password)
	if !res.Success {
		writeJSON(w, http.StatusUnauthorized, authResponse{Result: res})
		return
	}

	h.respondWithToken(w, http.StatusOK, res)
}

func (h *APIHandler) respondWithToken(w http.ResponseWriter, status int, res core.Result) {
	user := h.authService.CurrentUser()
	if user == nil {
		http.Error(w, "Failed to establish session", http.StatusInternalServerError)
		return
	}
	token, err := auth.GenerateJWT(h.jwtSecret, user.ID)
	if err != nil {
		h.logger.Error("token generation failed", "userID", user.ID, "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, authResponse{Result: res, Token: token})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.authService.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.authService.Session().Value())
}

func (h *APIHandler) UpgradeAccountHandler(w http.ResponseWriter, r *http.Request) {
	res := h.authService.UpgradeToProAccount()
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, res)
}

func (h *APIHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	res := h.authService.DeleteAccount()
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, res)
}

type chatListResponse struct {
	Chats    any    `json:"chats"`
	ActiveID string `json:"activeId"`
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chatListResponse{
		Chats:    h.chatService.Chats().Value(),
		ActiveID: h.chatService.ActiveID().Value(),
	})
}

type CreateChatRequest struct {
	Title string `json:"title,omitempty"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id := h.chatService.NewChat(req.Title)
	if id == "" {
		http.Error(w, "No active session", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *APIHandler) SelectChatHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.SelectChat(chi.URLParam(r, "chatID"))
	w.WriteHeader(http.StatusNoContent)
}

type RenameChatRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) RenameChatHandler(w http.ResponseWriter, r *http.Request) {
	var req RenameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title cannot be empty", http.StatusBadRequest)
		return
	}
	h.chatService.RenameChat(chi.URLParam(r, "chatID"), req.Title)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.DeleteChat(chi.URLParam(r, "chatID"))
	w.WriteHeader(http.StatusNoContent)
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	// The user message is appended synchronously; the assistant reply
	// arrives later over the event stream.
	h.chatService.Send(req.Content)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"activeId": h.chatService.ActiveID().Value(),
		"messages": h.chatService.ActiveMessages(),
	})
}

func (h *APIHandler) GetThemeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"theme": h.themeService.Theme().Value()})
}

type SetThemeRequest struct {
	Theme string `json:"theme"`
}

func (h *APIHandler) SetThemeHandler(w http.ResponseWriter, r *http.Request) {
	var req SetThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Theme != core.ThemeLight && req.Theme != core.ThemeDark {
		http.Error(w, "Unknown theme", http.StatusBadRequest)
		return
	}
	h.themeService.Set(req.Theme)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
