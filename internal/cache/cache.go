package cache

import (
	"context"
	"time"

	"tillguard/backend/internal/domain"
)

// SessionCache is a read-through cache in front of the session store. A
// miss or error simply falls back to the store; entries expire with the
// session they mirror. A hit is served without consulting the store, so
// every mutation (refresh, event change, logout, login displacing a
// terminal's prior sessions) must write through or delete the cached
// entry; a cached session is stale only between a store mutation and the
// corresponding cache call.
type SessionCache interface {
	GetSession(ctx context.Context, sessionID string) (*domain.EmployeeSession, bool, error)
	SetSession(ctx context.Context, session domain.EmployeeSession, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type NoopSessionCache struct{}

func (NoopSessionCache) GetSession(_ context.Context, _ string) (*domain.EmployeeSession, bool, error) {
	return nil, false, nil
}

func (NoopSessionCache) SetSession(_ context.Context, _ domain.EmployeeSession, _ time.Duration) error {
	return nil
}

func (NoopSessionCache) DeleteSession(_ context.Context, _ string) error {
	return nil
}
