package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillguard/backend/internal/cache"
	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
	"tillguard/backend/internal/xid"
)

var (
	ErrInvalidCredentials = errors.New("invalid employee number or PIN")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidPIN         = errors.New("pin must be 4 to 8 digits")
)

const DefaultTTL = 12 * time.Hour

// Manager owns employee PIN credentials and POS sessions. PINs are stored
// as hex HMAC-SHA256 digests keyed by an injected secret; the plaintext is
// never persisted. One terminal holds at most one live session.
type Manager struct {
	repo   store.Repository
	cache  cache.SessionCache
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(repo store.Repository, sessionCache cache.SessionCache, secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sessionCache == nil {
		sessionCache = cache.NoopSessionCache{}
	}
	return &Manager{
		repo:   repo,
		cache:  sessionCache,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// HashPIN derives the stored credential for an employee PIN. Binding the
// employee number into the message keeps equal PINs from producing equal
// hashes.
func HashPIN(secret []byte, employeeNumber, pin string) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%s", employeeNumber, pin)
	return hex.EncodeToString(mac.Sum(nil))
}

// OfflineHash derives the verification hash a terminal uses to validate a
// cached session without network access.
func OfflineHash(secret []byte, sessionID, employeeNumber string, expiresAt int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s:%s:%d", sessionID, employeeNumber, expiresAt)
	return hex.EncodeToString(mac.Sum(nil))
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (m *Manager) RegisterEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (*domain.Employee, error) {
	employeeNumber := strings.TrimSpace(req.EmployeeNumber)
	if employeeNumber == "" || strings.TrimSpace(req.DisplayName) == "" {
		return nil, errors.New("employee_number and display_name are required")
	}
	if !validPIN(req.PIN) {
		return nil, ErrInvalidPIN
	}

	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}

	employee := domain.Employee{
		EmployeeNumber: employeeNumber,
		DisplayName:    strings.TrimSpace(req.DisplayName),
		PINHash:        HashPIN(m.secret, employeeNumber, req.PIN),
		Role:           role,
		PublisherID:    req.PublisherID,
		EventID:        req.EventID,
		Active:         true,
		CreatedAt:      m.now().UTC(),
	}

	created, err := m.repo.CreateEmployee(ctx, employee)
	if err != nil {
		return nil, fmt.Errorf("create employee: %w", err)
	}
	return created, nil
}

func (m *Manager) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return m.repo.ListEmployees(ctx)
}

// Login verifies the PIN and opens a fresh session bound to the terminal.
// Unknown employee, inactive employee and wrong PIN are indistinguishable
// to the caller.
func (m *Manager) Login(ctx context.Context, employeeNumber, pin, terminalID string) (*domain.POSLoginResponse, error) {
	employee, err := m.repo.GetEmployee(ctx, employeeNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup employee: %w", err)
	}
	if !employee.Active {
		return nil, ErrInvalidCredentials
	}

	candidate := HashPIN(m.secret, employeeNumber, pin)
	if !hmac.Equal([]byte(candidate), []byte(employee.PINHash)) {
		return nil, ErrInvalidCredentials
	}

	if terminalID != "" {
		displaced, err := m.repo.DeleteTerminalSessions(ctx, terminalID)
		if err != nil {
			log.Printf("[session] WARN: invalidating prior sessions for %s failed: %v", terminalID, err)
		}
		// Displaced sessions must stop verifying immediately, so the cached
		// copies go too.
		for _, sessionID := range displaced {
			if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
				log.Printf("[session] WARN: cache delete for %s failed: %v", sessionID, err)
			}
		}
	}

	now := m.now().UTC()
	session := domain.EmployeeSession{
		SessionID:      xid.New("sess"),
		EmployeeNumber: employee.EmployeeNumber,
		TerminalID:     terminalID,
		DisplayName:    employee.DisplayName,
		Role:           employee.Role,
		PublisherID:    employee.PublisherID,
		EventID:        employee.EventID,
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(m.ttl).Unix(),
	}
	if err := m.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.cacheSession(ctx, session)

	return &domain.POSLoginResponse{
		Session:                 session,
		OfflineVerificationHash: OfflineHash(m.secret, session.SessionID, session.EmployeeNumber, session.ExpiresAt),
	}, nil
}

// Verify resolves a session id to a live session. Expired sessions are
// removed lazily.
func (m *Manager) Verify(ctx context.Context, sessionID string) (*domain.EmployeeSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, found, err := m.cache.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("[session] WARN: cache lookup for %s failed: %v", sessionID, err)
	}
	if !found || session == nil {
		stored, err := m.repo.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("lookup session: %w", err)
		}
		session = stored
	}

	if m.now().Unix() >= session.ExpiresAt {
		m.dropSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}
	return session, nil
}

// VerifyOffline recomputes the offline verification hash and compares it in
// constant time. Pure function of its inputs; no store access.
func (m *Manager) VerifyOffline(sessionID, employeeNumber string, expiresAt int64, hash string) bool {
	expected := OfflineHash(m.secret, sessionID, employeeNumber, expiresAt)
	return hmac.Equal([]byte(expected), []byte(hash))
}

// Refresh extends a live session by the full TTL and returns the new
// offline verification hash. Expired sessions cannot be refreshed.
func (m *Manager) Refresh(ctx context.Context, sessionID string) (*domain.POSLoginResponse, error) {
	session, err := m.Verify(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().UTC().Add(m.ttl).Unix()
	updated, err := m.repo.UpdateSessionExpiry(ctx, session.SessionID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	m.cacheSession(ctx, *updated)

	return &domain.POSLoginResponse{
		Session:                 *updated,
		OfflineVerificationHash: OfflineHash(m.secret, updated.SessionID, updated.EmployeeNumber, updated.ExpiresAt),
	}, nil
}

// SetEvent switches the session's active event.
func (m *Manager) SetEvent(ctx context.Context, sessionID, eventID string) (*domain.EmployeeSession, error) {
	session, err := m.Verify(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	updated, err := m.repo.UpdateSessionEvent(ctx, session.SessionID, eventID)
	if err != nil {
		return nil, fmt.Errorf("set session event: %w", err)
	}
	m.cacheSession(ctx, *updated)
	return updated, nil
}

// Invalidate ends a session. Idempotent: unknown ids are not an error.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	m.dropSession(ctx, sessionID)
	return nil
}

func (m *Manager) cacheSession(ctx context.Context, session domain.EmployeeSession) {
	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		return
	}
	if err := m.cache.SetSession(ctx, session, ttl); err != nil {
		log.Printf("[session] WARN: cache write for %s failed: %v", session.SessionID, err)
	}
}

func (m *Manager) dropSession(ctx context.Context, sessionID string) {
	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[session] WARN: cache delete for %s failed: %v", sessionID, err)
	}
	if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[session] WARN: delete session %s failed: %v", sessionID, err)
	}
}
