package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledgersync/internal/domain/user"
	"ledgersync/internal/shared/auth"
	"ledgersync/internal/shared/middleware"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *auth.SessionSigner) {
	t.Helper()
	hash, err := auth.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	repo := &MockUserRepo{
		GetByEmailFunc: func(ctx context.Context, email string) (*user.User, error) {
			if email == "ana@example.com" {
				return &user.User{ID: 7, Email: email, Name: "Ana", PasswordHash: &hash}, nil
			}
			return nil, user.ErrUserNotFound
		},
	}
	signer := auth.NewSessionSigner("test-secret", time.Hour)
	return NewAuthHandler(user.NewService(repo), signer, time.Hour), signer
}

func TestHandleLogin(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           string
		expectedStatus int
	}{
		{"Success", http.MethodPost, `{"email":"ana@example.com","password":"hunter2hunter2"}`, http.StatusOK},
		{"Wrong password", http.MethodPost, `{"email":"ana@example.com","password":"nope"}`, http.StatusUnauthorized},
		{"Unknown user", http.MethodPost, `{"email":"bob@example.com","password":"hunter2hunter2"}`, http.StatusUnauthorized},
		{"Missing fields", http.MethodPost, `{"email":"ana@example.com"}`, http.StatusBadRequest},
		{"Bad JSON", http.MethodPost, `{`, http.StatusBadRequest},
		{"Wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newAuthHandler(t)
			req := httptest.NewRequest(tt.method, "/api/auth/login", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()

			handler.HandleLogin(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestHandleLogin_IssuesVerifiableSession(t *testing.T) {
	handler, signer := newAuthHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"hunter2hunter2"}`))
	rr := httptest.NewRecorder()

	handler.HandleLogin(rr, req)

	var resp AuthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	claims := signer.Verify(resp.Token)
	if claims == nil || claims.Subject != 7 {
		t.Fatalf("token did not verify to user 7: %+v", claims)
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
		t.Errorf("session cookie not set correctly: %+v", cookie)
	}
	if strings.Contains(rr.Body.String(), "hunter2") {
		t.Error("response leaked password material")
	}
}

func TestHandleLogout(t *testing.T) {
	handler, _ := newAuthHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rr := httptest.NewRecorder()

	handler.HandleLogout(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected an expiring session cookie, got %+v", cookies)
	}
}

func TestHandleMe(t *testing.T) {
	repo := &MockUserRepo{
		GetByIDFunc: func(ctx context.Context, id int64) (*user.User, error) {
			if id == 7 {
				return &user.User{ID: 7, Email: "ana@example.com"}, nil
			}
			return nil, user.ErrUserNotFound
		},
	}
	handler := NewUserHandler(user.NewService(repo))

	tests := []struct {
		name           string
		userID         int64
		setUser        bool
		expectedStatus int
	}{
		{"Found", 7, true, http.StatusOK},
		{"Missing", 8, true, http.StatusNotFound},
		{"Unauthenticated", 0, false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tt.setUser {
				req = req.WithContext(withUser(req.Context(), tt.userID))
			}
			rr := httptest.NewRecorder()

			handler.HandleMe(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}
