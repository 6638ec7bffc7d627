package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"ledgersync/internal/domain/user"
	"ledgersync/internal/shared/auth"
	"ledgersync/internal/shared/middleware"
)

const maxAuthBodySize = 64 << 10

type AuthHandler struct {
	users  *user.Service
	signer *auth.SessionSigner
	ttl    time.Duration
}

func NewAuthHandler(users *user.Service, signer *auth.SessionSigner, ttl time.Duration) *AuthHandler {
	return &AuthHandler{users: users, signer: signer, ttl: ttl}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// HandleLogin authenticates a user with email and password
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			http.Error(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		log.Printf("Error authenticating user: %v", err)
		http.Error(w, "Failed to authenticate", http.StatusInternalServerError)
		return
	}

	token, err := h.signer.Issue(u.ID, u.Name, u.IsAdmin)
	if err != nil {
		log.Printf("User %d: failed to issue session: %v", u.ID, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, r, token, int(h.ttl.Seconds()))
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: u})
}

// HandleLogout clears the session cookie. Tokens are stateless, so bearer
// clients simply drop theirs.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.setSessionCookie(w, r, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string, maxAge int) {
	// Only set Secure flag when actually using HTTPS
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
