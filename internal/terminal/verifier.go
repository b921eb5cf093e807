package terminal

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"tillguard/backend/internal/domain"
	"tillguard/backend/internal/store"
)

var (
	ErrTimestampOutOfRange = errors.New("timestamp out of range")
	ErrTerminalNotFound    = errors.New("terminal not found")
	ErrTerminalRevoked     = errors.New("terminal is revoked")
	ErrMalformedKey        = errors.New("stored public key is malformed")
	ErrInvalidSignature    = errors.New("invalid signature")
)

// DefaultReplayWindow bounds how far a request timestamp may drift from the
// server clock in either direction. Replay protection relies on this window
// alone; there is no nonce store.
const DefaultReplayWindow = 300 * time.Second

// Verifier authenticates handshake requests signed by registered terminals.
// The signed message is "{terminal_id}:{timestamp}" with the timestamp in
// unix seconds.
type Verifier struct {
	registry *Registry
	window   time.Duration
	now      func() time.Time
}

func NewVerifier(registry *Registry, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Verifier{registry: registry, window: window, now: time.Now}
}

// Verify runs the check chain in a fixed order: timestamp window, terminal
// lookup, status, key decode, signature decode, signature verification.
// On success the terminal's last-seen marker is updated asynchronously.
func (v *Verifier) Verify(ctx context.Context, terminalID string, timestamp int64, signature string) (*domain.Terminal, error) {
	drift := v.now().Unix() - timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(v.window/time.Second) {
		return nil, ErrTimestampOutOfRange
	}

	terminal, err := v.registry.Get(ctx, terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTerminalNotFound
		}
		return nil, fmt.Errorf("lookup terminal: %w", err)
	}
	if terminal.Status != domain.TerminalStatusActive {
		return nil, ErrTerminalRevoked
	}

	publicKey, err := base64.StdEncoding.DecodeString(terminal.PublicKey)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return nil, ErrMalformedKey
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	message := fmt.Sprintf("%s:%d", terminalID, timestamp)
	if !ed25519.Verify(publicKey, []byte(message), sig) {
		return nil, ErrInvalidSignature
	}

	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v.registry.Touch(touchCtx, terminalID)
	}()

	return terminal, nil
}
