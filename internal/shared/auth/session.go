package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Claims identify who presented a session token.
// Field order is fixed; encoding/json emits it in declaration order, which is what makes
// the MAC input canonical.
type Claims struct {
	Subject  int64  `json:"sub"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin"`
	IssuedAt int64  `json:"iat"`
}

type envelope struct {
	Claims json.RawMessage `json:"claims"`
	MAC    string          `json:"mac"`
}

// SessionSigner signs and verifies opaque session tokens.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionSigner returns a signer. A ttl of zero disables expiry checks.
func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	return &SessionSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue stamps the issuance time and signs.
func (s *SessionSigner) Issue(userID int64, name string, admin bool) (string, error) {
	return s.Sign(Claims{
		Subject:  userID,
		Name:     name,
		Admin:    admin,
		IssuedAt: s.now().Unix(),
	})
}

// Sign returns base64url(JSON{claims, mac}).
func (s *SessionSigner) Sign(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	token, err := json.Marshal(envelope{Claims: payload, MAC: s.mac(payload)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(token), nil
}

// Verify returns the claims carried by a valid token, or nil.
func (s *SessionSigner) Verify(token string) *Claims {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Claims) == 0 {
		return nil
	}

	var claims Claims
	if err := json.Unmarshal(env.Claims, &claims); err != nil {
		return nil
	}

	// Recompute over the re-encoded claims so whitespace or key order in the token can't matter.
	canonical, err := json.Marshal(claims)
	if err != nil {
		return nil
	}
	if !hmac.Equal([]byte(s.mac(canonical)), []byte(env.MAC)) {
		return nil
	}

	if s.ttl > 0 && s.now().Sub(time.Unix(claims.IssuedAt, 0)) > s.ttl {
		return nil
	}

	return &claims
}

func (s *SessionSigner) mac(payload []byte) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
