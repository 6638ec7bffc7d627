package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsHostAllowed(t *testing.T) {
	allowed := []string{"ledger.example.com", "api.ledger.example.com:8443", "::1"}

	tests := []struct {
		host string
		want bool
	}{
		{"ledger.example.com", true},
		{"ledger.example.com:443", true},
		{"LEDGER.Example.com", true},
		{"api.ledger.example.com:8443", true},
		{"api.ledger.example.com", true},
		{"[::1]:8080", true},
		{"::1", true},
		{"sub.ledger.example.com", false},
		{"evil.com", false},
		{"ledger.example.com.evil.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsHostAllowed(tt.host, allowed); got != tt.want {
			t.Errorf("IsHostAllowed(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	if !IsHostAllowed("anything.example", nil) {
		t.Error("Expected empty allow list to allow every host")
	}
}

func TestEnsureSecureCookie(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		contains []string
		excludes []string
	}{
		{
			name:     "adds flags and default SameSite",
			in:       "session=abc; Path=/",
			contains: []string{"session=abc", "Path=/", "Secure", "HttpOnly", "SameSite=Lax"},
		},
		{
			name:     "keeps explicit SameSite",
			in:       "session=abc; Path=/; SameSite=Strict",
			contains: []string{"SameSite=Strict", "Secure", "HttpOnly"},
			excludes: []string{"SameSite=Lax"},
		},
		{
			name:     "logout cookie keeps expiry",
			in:       "session=; Path=/; Max-Age=0",
			contains: []string{"session=", "Max-Age=0", "Secure"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ensureSecureCookie(tt.in)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("ensureSecureCookie(%q) = %q, missing %q", tt.in, got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("ensureSecureCookie(%q) = %q, should not contain %q", tt.in, got, bad)
				}
			}
		})
	}
}

func TestEnsureSecureCookie_UnparseablePassesThrough(t *testing.T) {
	if got := ensureSecureCookie("=novalue"); got != "=novalue" {
		t.Errorf("Expected unparseable cookie unchanged, got %q", got)
	}
}

func TestSecureCookies_RewritesSessionCookie(t *testing.T) {
	handler := SecureCookies(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "tok", Path: "/"})
		w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookie || c.Value != "tok" {
		t.Errorf("Unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.Secure || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("Expected secured cookie, got %+v", c)
	}
}

func TestHSTS(t *testing.T) {
	handler := HSTS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("Unexpected HSTS header %q", got)
	}
}

func TestRedirectToHTTPS(t *testing.T) {
	handler := RedirectToHTTPS([]string{"ledger.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://ledger.example.com/api/connections?x=1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusMovedPermanently {
		t.Fatalf("Expected 301, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://ledger.example.com/api/connections?x=1" {
		t.Errorf("Unexpected Location %q", loc)
	}

	req = httptest.NewRequest(http.MethodGet, "http://evil.com/", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for foreign host, got %d", rr.Code)
	}
}
