package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gemscope/internal/common"
)

// Claims are the JWT claims carried by API bearer tokens.
type Claims struct {
	OwnerID string `json:"ownerId"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates the HS256 bearer tokens the API
// accepts after the key exchange.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a token manager with the given signing secret
// and token lifetime.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue mints a signed token for the owner.
func (m *TokenManager) Issue(ownerID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "gemscope",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a token string and returns its claims. Expired,
// tampered, or foreign tokens fail with common.ErrUnauthorized.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", common.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.OwnerID == "" {
		return nil, fmt.Errorf("invalid token claims: %w", common.ErrUnauthorized)
	}
	return claims, nil
}

// ownerFromKey derives the stable owner ID for an API key. Records and
// logs only ever carry the fingerprint, never the key itself.
func ownerFromKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "key-" + hex.EncodeToString(sum[:])[:12]
}

// handleAuthToken exchanges a configured API key for a bearer token.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	matched := false
	for _, key := range s.cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(req.APIKey)) == 1 {
			matched = true
		}
	}
	if !matched {
		s.respondError(w, fmt.Errorf("unknown api key: %w", common.ErrUnauthorized))
		return
	}

	token, expiresAt, err := s.tokens.Issue(ownerFromKey(req.APIKey))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	})
}
