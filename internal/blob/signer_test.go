package blob

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"gemscope/internal/common"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret")
	now := time.Now()

	grant := Grant{
		Method:      http.MethodPut,
		Key:         "datasets/o1/ds1/lots.csv",
		ContentType: "text/csv",
		ExpiresAt:   now.Add(15 * time.Minute).Unix(),
	}
	token, err := signer.Token(grant)
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}

	got, err := signer.Verify(token, now)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if got != grant {
		t.Errorf("Grant mismatch: got %+v, want %+v", got, grant)
	}
}

func TestSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSigner("test-secret")
	now := time.Now()

	token, err := signer.Token(Grant{
		Method:    http.MethodGet,
		Key:       "predictions/p1/results.csv",
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}

	// Flip one character in the payload half.
	flipped := token
	if flipped[0] == 'A' {
		flipped = "B" + flipped[1:]
	} else {
		flipped = "A" + flipped[1:]
	}

	if _, err := signer.Verify(flipped, now); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for tampered token, got: %v", err)
	}
}

func TestSignerRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	token, err := NewSigner("secret-a").Token(Grant{
		Method:    http.MethodPut,
		Key:       "k",
		ExpiresAt: now.Add(time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}

	if _, err := NewSigner("secret-b").Verify(token, now); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for wrong secret, got: %v", err)
	}
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	signer := NewSigner("test-secret")
	now := time.Now()

	token, err := signer.Token(Grant{
		Method:    http.MethodPut,
		Key:       "k",
		ExpiresAt: now.Add(-time.Second).Unix(),
	})
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}

	if _, err := signer.Verify(token, now); !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for expired token, got: %v", err)
	}
}

func TestSignerRejectsMalformedToken(t *testing.T) {
	signer := NewSigner("test-secret")

	for _, token := range []string{"", "no-dot", "bad base64!.sig", strings.Repeat(".", 3)} {
		if _, err := signer.Verify(token, time.Now()); !errors.Is(err, common.ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized for token %q, got: %v", token, err)
		}
	}
}
