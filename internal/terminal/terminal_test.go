package terminal

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/store/memory"
)

// newKeyPair generates an ed25519 pair and returns the base64 public key
// plus a signer for handshake messages.
func newKeyPair(t *testing.T) (string, func(terminalID string, timestamp int64) string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	sign := func(terminalID string, timestamp int64) string {
		message := fmt.Sprintf("%s:%d", terminalID, timestamp)
		return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(message)))
	}
	return base64.StdEncoding.EncodeToString(pub), sign
}

func registerTerminal(t *testing.T, registry *Registry, terminalID, publicKey string) *domain.Terminal {
	t.Helper()

	created, err := registry.Register(context.Background(), domain.TerminalRegisterRequest{
		TerminalID: terminalID,
		PublicKey:  publicKey,
		DeviceName: "Test Tablet",
		OSType:     "android",
	}, "admin")
	if err != nil {
		t.Fatalf("register terminal: %v", err)
	}
	return created
}

func TestRegisterRejectsInvalidPublicKey(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())

	cases := []string{"", "not-base64!!", base64.StdEncoding.EncodeToString([]byte("short"))}
	for _, key := range cases {
		_, err := registry.Register(context.Background(), domain.TerminalRegisterRequest{
			TerminalID: "term-bad-key",
			PublicKey:  key,
		}, "admin")
		if err == nil {
			t.Fatalf("expected registration with key %q to fail", key)
		}
	}
}

func TestRegisterDuplicateTerminalID(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	publicKey, _ := newKeyPair(t)

	registerTerminal(t, registry, "term-dup", publicKey)

	_, err := registry.Register(context.Background(), domain.TerminalRegisterRequest{
		TerminalID: "term-dup",
		PublicKey:  publicKey,
	}, "admin")
	if !errors.Is(err, store.ErrDuplicateTerminal) {
		t.Fatalf("expected ErrDuplicateTerminal, got %v", err)
	}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, DefaultReplayWindow)
	publicKey, sign := newKeyPair(t)
	registerTerminal(t, registry, "term-ok", publicKey)

	now := time.Now().Unix()
	terminal, err := verifier.Verify(context.Background(), "term-ok", now, sign("term-ok", now))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if terminal.TerminalID != "term-ok" {
		t.Fatalf("expected terminal term-ok, got %s", terminal.TerminalID)
	}
}

func TestVerifyRejectsBitFlippedSignature(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, DefaultReplayWindow)
	publicKey, sign := newKeyPair(t)
	registerTerminal(t, registry, "term-flip", publicKey)

	now := time.Now().Unix()
	raw, err := base64.StdEncoding.DecodeString(sign("term-flip", now))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	raw[0] ^= 0x01
	flipped := base64.StdEncoding.EncodeToString(raw)

	if _, err := verifier.Verify(context.Background(), "term-flip", now, flipped); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsSignatureForOtherTerminal(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, DefaultReplayWindow)
	publicKey, sign := newKeyPair(t)
	registerTerminal(t, registry, "term-a", publicKey)

	now := time.Now().Unix()
	// Signature over "term-b:{ts}" presented as term-a.
	if _, err := verifier.Verify(context.Background(), "term-a", now, sign("term-b", now)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyReplayWindowBoundaries(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, 300*time.Second)
	publicKey, sign := newKeyPair(t)
	registerTerminal(t, registry, "term-win", publicKey)

	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	verifier.now = func() time.Time { return fixed }

	cases := []struct {
		name      string
		timestamp int64
		wantErr   error
	}{
		{"301s in the past", fixed.Unix() - 301, ErrTimestampOutOfRange},
		{"exactly 300s in the past", fixed.Unix() - 300, nil},
		{"299s in the past", fixed.Unix() - 299, nil},
		{"301s in the future", fixed.Unix() + 301, ErrTimestampOutOfRange},
		{"300s in the future", fixed.Unix() + 300, nil},
	}
	for _, tc := range cases {
		_, err := verifier.Verify(context.Background(), "term-win", tc.timestamp, sign("term-win", tc.timestamp))
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: expected success, got %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestVerifyUnknownTerminal(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, DefaultReplayWindow)
	_, sign := newKeyPair(t)

	now := time.Now().Unix()
	if _, err := verifier.Verify(context.Background(), "term-ghost", now, sign("term-ghost", now)); !errors.Is(err, ErrTerminalNotFound) {
		t.Fatalf("expected ErrTerminalNotFound, got %v", err)
	}
}

func TestVerifyRevokedTerminal(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, DefaultReplayWindow)
	publicKey, sign := newKeyPair(t)
	registerTerminal(t, registry, "term-rev", publicKey)

	revoked, err := registry.Revoke(context.Background(), "term-rev")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != domain.TerminalStatusRevoked || revoked.RevokedAt == nil {
		t.Fatalf("expected revoked status with timestamp, got %+v", revoked)
	}

	now := time.Now().Unix()
	if _, err := verifier.Verify(context.Background(), "term-rev", now, sign("term-rev", now)); !errors.Is(err, ErrTerminalRevoked) {
		t.Fatalf("expected ErrTerminalRevoked, got %v", err)
	}
}

func TestVerifyChecksTimestampBeforeLookup(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	verifier := NewVerifier(registry, 300*time.Second)

	// Unknown terminal with a stale timestamp: the window check must win.
	stale := time.Now().Unix() - 10_000
	if _, err := verifier.Verify(context.Background(), "term-ghost", stale, "sig"); !errors.Is(err, ErrTimestampOutOfRange) {
		t.Fatalf("expected ErrTimestampOutOfRange, got %v", err)
	}
}

func TestDeleteTerminal(t *testing.T) {
	registry := NewRegistry(memory.NewSeeded())
	publicKey, _ := newKeyPair(t)
	registerTerminal(t, registry, "term-del", publicKey)

	if err := registry.Delete(context.Background(), "term-del"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := registry.Get(context.Background(), "term-del"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := registry.Delete(context.Background(), "term-del"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
