package terminal

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
)

var (
	ErrInvalidPublicKey = errors.New("public key must be a base64-encoded 32-byte ed25519 key")
	ErrMissingFields    = errors.New("terminal_id and public_key are required")
)

// Registry manages the lifecycle of terminal key registrations. A terminal
// is trusted while its record exists with status active; revocation keeps
// the record for auditing, deletion removes it outright.
type Registry struct {
	repo store.Repository
	now  func() time.Time
}

func NewRegistry(repo store.Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

func (r *Registry) Register(ctx context.Context, req domain.TerminalRegisterRequest, registeredBy string) (*domain.Terminal, error) {
	terminalID := strings.TrimSpace(req.TerminalID)
	publicKey := strings.TrimSpace(req.PublicKey)
	if terminalID == "" || publicKey == "" {
		return nil, ErrMissingFields
	}

	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}

	terminal := domain.Terminal{
		TerminalID:   terminalID,
		PublicKey:    publicKey,
		DeviceName:   strings.TrimSpace(req.DeviceName),
		OSType:       strings.TrimSpace(req.OSType),
		Status:       domain.TerminalStatusActive,
		RegisteredBy: registeredBy,
		RegisteredAt: r.now().UTC(),
	}

	created, err := r.repo.CreateTerminal(ctx, terminal)
	if err != nil {
		return nil, fmt.Errorf("create terminal: %w", err)
	}
	return created, nil
}

func (r *Registry) Get(ctx context.Context, terminalID string) (*domain.Terminal, error) {
	return r.repo.GetTerminal(ctx, terminalID)
}

func (r *Registry) List(ctx context.Context, status string) ([]domain.Terminal, error) {
	return r.repo.ListTerminals(ctx, status)
}

func (r *Registry) Revoke(ctx context.Context, terminalID string) (*domain.Terminal, error) {
	terminal, err := r.repo.RevokeTerminal(ctx, terminalID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("revoke terminal: %w", err)
	}
	return terminal, nil
}

func (r *Registry) Delete(ctx context.Context, terminalID string) error {
	if err := r.repo.DeleteTerminal(ctx, terminalID); err != nil {
		return fmt.Errorf("delete terminal: %w", err)
	}
	return nil
}

// Touch records terminal liveness. It is advisory: every failure is
// swallowed with a warning and never reaches a caller's error path.
func (r *Registry) Touch(ctx context.Context, terminalID string) {
	if err := r.repo.TouchTerminal(ctx, terminalID, r.now().UTC()); err != nil {
		log.Printf("[terminal] WARN: touch %s failed: %v", terminalID, err)
	}
}
