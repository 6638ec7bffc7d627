package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestSession_SignAndVerify(t *testing.T) {
	s := NewSessionSigner("my-secret-key", 0)

	claims := Claims{Subject: 42, Name: "Ana", Admin: true, IssuedAt: 1700000000}
	token, err := s.Sign(claims)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	if token == "" {
		t.Fatal("Sign() returned empty token")
	}

	got := s.Verify(token)
	if got == nil {
		t.Fatal("Verify() rejected a freshly signed token")
	}
	if *got != claims {
		t.Errorf("Verify() = %+v, want %+v", *got, claims)
	}
}

func TestSession_AlteredClaims(t *testing.T) {
	s := NewSessionSigner("my-secret-key", 0)
	token, _ := s.Sign(Claims{Subject: 1, Name: "user", Admin: false, IssuedAt: 1700000000})

	raw, _ := base64.RawURLEncoding.DecodeString(token)
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("token is not JSON: %v", err)
	}

	tests := []struct {
		name   string
		claims Claims
	}{
		{"escalated admin", Claims{Subject: 1, Name: "user", Admin: true, IssuedAt: 1700000000}},
		{"other subject", Claims{Subject: 2, Name: "user", Admin: false, IssuedAt: 1700000000}},
		{"renamed", Claims{Subject: 1, Name: "root", Admin: false, IssuedAt: 1700000000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forged, _ := json.Marshal(tt.claims)
			env["claims"] = forged
			out, _ := json.Marshal(env)
			if got := s.Verify(base64.RawURLEncoding.EncodeToString(out)); got != nil {
				t.Errorf("Verify() accepted altered claims: %+v", got)
			}
		})
	}
}

func TestSession_DifferentSecret(t *testing.T) {
	a := NewSessionSigner("secret-a", 0)
	b := NewSessionSigner("secret-b", 0)

	token, _ := a.Sign(Claims{Subject: 7, Name: "x", IssuedAt: 1700000000})
	if got := b.Verify(token); got != nil {
		t.Errorf("Verify() accepted token from another secret: %+v", got)
	}
}

func TestSession_Malformed(t *testing.T) {
	s := NewSessionSigner("my-secret-key", 0)

	for _, token := range []string{
		"",
		"not base64!!",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"mac":"abc"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"claims":"str","mac":"abc"}`)),
	} {
		if got := s.Verify(token); got != nil {
			t.Errorf("Verify(%q) = %+v, want nil", token, got)
		}
	}
}

func TestSession_Expiry(t *testing.T) {
	s := NewSessionSigner("my-secret-key", time.Hour)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	token, err := s.Issue(5, "Bia", false)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	if s.Verify(token) == nil {
		t.Fatal("Verify() rejected a fresh token")
	}

	now = now.Add(2 * time.Hour)
	if got := s.Verify(token); got != nil {
		t.Errorf("Verify() accepted an expired token: %+v", got)
	}
}
