package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"tillguard/backend/internal/cache"
	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store/memory"
)

const testSecret = "unit-test-pin-secret-0123456789abcdef"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(memory.NewSeeded(), cache.NoopSessionCache{}, testSecret, DefaultTTL)
}

func seedEmployee(t *testing.T, m *Manager, number, pin, role string) {
	t.Helper()

	_, err := m.RegisterEmployee(context.Background(), domain.EmployeeCreateRequest{
		EmployeeNumber: number,
		DisplayName:    "Employee " + number,
		PIN:            pin,
		Role:           role,
	})
	if err != nil {
		t.Fatalf("register employee %s: %v", number, err)
	}
}

func TestHashPINIsDeterministicAndScoped(t *testing.T) {
	secret := []byte(testSecret)

	if HashPIN(secret, "1001", "4829") != HashPIN(secret, "1001", "4829") {
		t.Fatalf("expected identical inputs to hash identically")
	}
	// Same PIN for two employees must not collide.
	if HashPIN(secret, "1001", "4829") == HashPIN(secret, "1002", "4829") {
		t.Fatalf("expected employee number to scope the hash")
	}
	if HashPIN(secret, "1001", "4829") == HashPIN([]byte("other-secret"), "1001", "4829") {
		t.Fatalf("expected secret to scope the hash")
	}
}

func TestRegisterEmployeeValidatesPIN(t *testing.T) {
	m := newTestManager(t)

	for _, pin := range []string{"", "123", "123456789", "12a4", "abcd"} {
		_, err := m.RegisterEmployee(context.Background(), domain.EmployeeCreateRequest{
			EmployeeNumber: "2001",
			DisplayName:    "PIN Check",
			PIN:            pin,
		})
		if !errors.Is(err, ErrInvalidPIN) {
			t.Fatalf("expected ErrInvalidPIN for %q, got %v", pin, err)
		}
	}
}

func TestLoginAndVerify(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleLeader)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Session.SessionID == "" || resp.OfflineVerificationHash == "" {
		t.Fatalf("expected session id and offline hash, got %+v", resp)
	}
	if resp.Session.ExpiresAt-resp.Session.IssuedAt != int64(DefaultTTL/time.Second) {
		t.Fatalf("expected %v lifetime, got %d seconds", DefaultTTL, resp.Session.ExpiresAt-resp.Session.IssuedAt)
	}

	sess, err := m.Verify(context.Background(), resp.Session.SessionID)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if sess.EmployeeNumber != "1001" || sess.Role != domain.RoleLeader {
		t.Fatalf("unexpected session payload: %+v", sess)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	if _, err := m.Login(context.Background(), "9999", "482915", "term-a"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown employee: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Login(context.Background(), "1001", "000000", "term-a"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong pin: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginInvalidatesPriorTerminalSession(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)
	seedEmployee(t, m, "1002", "739154", domain.RoleStaff)

	first, err := m.Login(context.Background(), "1001", "482915", "term-shared")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := m.Login(context.Background(), "1002", "739154", "term-shared")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if _, err := m.Verify(context.Background(), first.Session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected first session gone, got %v", err)
	}
	if _, err := m.Verify(context.Background(), second.Session.SessionID); err != nil {
		t.Fatalf("expected second session live, got %v", err)
	}
}

func TestVerifyExpiredSession(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Minute) }

	if _, err := m.Verify(context.Background(), resp.Session.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// Expired sessions are dropped lazily; a second lookup misses entirely.
	if _, err := m.Verify(context.Background(), resp.Session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after lazy drop, got %v", err)
	}
}

func TestOfflineHashRoundTrip(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	sess := resp.Session

	if !m.VerifyOffline(sess.SessionID, sess.EmployeeNumber, sess.ExpiresAt, resp.OfflineVerificationHash) {
		t.Fatalf("expected offline hash to verify")
	}
	if m.VerifyOffline(sess.SessionID, "1002", sess.ExpiresAt, resp.OfflineVerificationHash) {
		t.Fatalf("expected changed employee number to break the hash")
	}
	if m.VerifyOffline(sess.SessionID, sess.EmployeeNumber, sess.ExpiresAt+1, resp.OfflineVerificationHash) {
		t.Fatalf("expected changed expiry to break the hash")
	}
	if m.VerifyOffline("sess-other", sess.EmployeeNumber, sess.ExpiresAt, resp.OfflineVerificationHash) {
		t.Fatalf("expected changed session id to break the hash")
	}
}

func TestRefreshExtendsSession(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Advance halfway through the TTL, then refresh.
	m.now = func() time.Time { return time.Now().Add(DefaultTTL / 2) }

	refreshed, err := m.Refresh(context.Background(), resp.Session.SessionID)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.Session.ExpiresAt <= resp.Session.ExpiresAt {
		t.Fatalf("expected refreshed expiry %d to exceed original %d", refreshed.Session.ExpiresAt, resp.Session.ExpiresAt)
	}
	if refreshed.OfflineVerificationHash == resp.OfflineVerificationHash {
		t.Fatalf("expected a new offline hash after refresh")
	}
	if !m.VerifyOffline(refreshed.Session.SessionID, refreshed.Session.EmployeeNumber, refreshed.Session.ExpiresAt, refreshed.OfflineVerificationHash) {
		t.Fatalf("expected refreshed offline hash to verify")
	}
}

func TestRefreshExpiredSessionFails(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Minute) }

	if _, err := m.Refresh(context.Background(), resp.Session.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSetEvent(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	updated, err := m.SetEvent(context.Background(), resp.Session.SessionID, "evt-summer")
	if err != nil {
		t.Fatalf("set event failed: %v", err)
	}
	if updated.EventID != "evt-summer" {
		t.Fatalf("expected event evt-summer, got %q", updated.EventID)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	seedEmployee(t, m, "1001", "482915", domain.RoleStaff)

	resp, err := m.Login(context.Background(), "1001", "482915", "term-a")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := m.Invalidate(context.Background(), resp.Session.SessionID); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, err := m.Verify(context.Background(), resp.Session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
	if err := m.Invalidate(context.Background(), resp.Session.SessionID); err != nil {
		t.Fatalf("second invalidate failed: %v", err)
	}
}

// mapSessionCache is an always-hitting in-process cache so tests can catch
// sessions that outlive their store record.
type mapSessionCache struct {
	sessions map[string]domain.EmployeeSession
}

func newMapSessionCache() *mapSessionCache {
	return &mapSessionCache{sessions: make(map[string]domain.EmployeeSession)}
}

func (c *mapSessionCache) GetSession(_ context.Context, sessionID string) (*domain.EmployeeSession, bool, error) {
	session, ok := c.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	copied := session
	return &copied, true, nil
}

func (c *mapSessionCache) SetSession(_ context.Context, session domain.EmployeeSession, _ time.Duration) error {
	c.sessions[session.SessionID] = session
	return nil
}

func (c *mapSessionCache) DeleteSession(_ context.Context, sessionID string) error {
	delete(c.sessions, sessionID)
	return nil
}

func TestLoginPurgesDisplacedSessionsFromCache(t *testing.T) {
	sessionCache := newMapSessionCache()
	m := NewManager(memory.NewSeeded(), sessionCache, testSecret, DefaultTTL)
	seedEmployee(t, m, "1001", "482915", domain.RoleLeader)
	seedEmployee(t, m, "1002", "556677", domain.RoleStaff)
	ctx := context.Background()

	first, err := m.Login(ctx, "1001", "482915", "term-shared")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	if _, err := m.Verify(ctx, first.Session.SessionID); err != nil {
		t.Fatalf("verify before displacement failed: %v", err)
	}

	second, err := m.Login(ctx, "1002", "556677", "term-shared")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	// The displaced session must stop verifying even though the cache
	// would still have served it.
	if _, err := m.Verify(ctx, first.Session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for displaced session, got %v", err)
	}
	if _, found, _ := sessionCache.GetSession(ctx, first.Session.SessionID); found {
		t.Fatalf("expected displaced session to be purged from the cache")
	}
	if _, err := m.Verify(ctx, second.Session.SessionID); err != nil {
		t.Fatalf("verify of replacement session failed: %v", err)
	}
}
