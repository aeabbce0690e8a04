package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gemscope/internal/common"
)

// Grant describes what a signed token allows: one method on one object
// key before the expiry. Field names stay short because the grant is
// carried inside the URL token.
type Grant struct {
	Method      string `json:"m"`
	Key         string `json:"k"`
	ContentType string `json:"ct,omitempty"`
	ExpiresAt   int64  `json:"exp"`
}

// Expired reports whether the grant expiry has passed at the given time.
func (g Grant) Expired(now time.Time) bool {
	return now.Unix() > g.ExpiresAt
}

// Signer mints and verifies HMAC-SHA256 URL tokens for direct blob
// upload and download.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Token serializes the grant and appends its signature. The result is
// URL-safe and self-contained.
func (s *Signer) Token(g Grant) (string, error) {
	payload, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal grant: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + s.sign(body), nil
}

// Verify checks the token signature and expiry and returns the embedded
// grant. Tampered or expired tokens fail with common.ErrUnauthorized.
func (s *Signer) Verify(token string, now time.Time) (Grant, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Grant{}, fmt.Errorf("malformed token: %w", common.ErrUnauthorized)
	}
	if !hmac.Equal([]byte(s.sign(body)), []byte(sig)) {
		return Grant{}, fmt.Errorf("token signature mismatch: %w", common.ErrUnauthorized)
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Grant{}, fmt.Errorf("decode token: %w", common.ErrUnauthorized)
	}
	var g Grant
	if err := json.Unmarshal(payload, &g); err != nil {
		return Grant{}, fmt.Errorf("unmarshal grant: %w", common.ErrUnauthorized)
	}
	if g.Expired(now) {
		return Grant{}, fmt.Errorf("token expired: %w", common.ErrUnauthorized)
	}
	return g, nil
}

func (s *Signer) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
