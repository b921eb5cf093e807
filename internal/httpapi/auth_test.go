package httpapi

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager("auth-test-secret", time.Hour, memory.NewSeeded())
}

func TestLoginWithSeededAdmin(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "admin" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: ""}); err == nil {
		t.Fatalf("expected empty password to fail")
	}
}

func TestLoginUsernameIsNormalized(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "  ADMIN ", Password: "admin123"}); err != nil {
		t.Fatalf("expected normalized username to log in, got %v", err)
	}
}

func TestParseTokenRejectsTampered(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
	if _, err := auth.ParseToken(""); err == nil {
		t.Fatalf("expected empty token to fail")
	}
}

func TestParseTokenFromForeignSecret(t *testing.T) {
	authA := newTestAuth(t)
	authB := NewAuthManager("a-different-secret-entirely", time.Hour, memory.NewSeeded())

	resp, err := authB.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := authA.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a foreign secret to fail")
	}
}

func TestBootstrapUpgradesLegacyPlainPassword(t *testing.T) {
	repo := memory.NewSeeded()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "ops",
		Password:  "legacy-plain-password",
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("auth-test-secret", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "ops", Password: "legacy-plain-password"}); err != nil {
		t.Fatalf("login with upgraded password failed: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username != "ops" {
			continue
		}
		if !isPasswordHash(user.Password) {
			t.Fatalf("expected stored password to be a bcrypt hash, got %q", user.Password)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("legacy-plain-password")); err != nil {
			t.Fatalf("upgraded hash does not verify: %v", err)
		}
		return
	}
	t.Fatalf("ops user not found after bootstrap")
}

func TestInactiveAccountRejected(t *testing.T) {
	repo := memory.NewSeeded()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "former",
		Password:  "some-password",
		Role:      "admin",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("auth-test-secret", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "former", Password: "some-password"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}
