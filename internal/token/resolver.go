package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GuestSecretLen is the number of random bytes behind each per-guest secret.
const GuestSecretLen = 32

// SecretStore is the persistence contract for per-guest secrets.
type SecretStore interface {
	// GetGuestSecret returns nil without error when the guest does not exist
	// or has no secret yet.
	GetGuestSecret(ctx context.Context, guestID int64) (*string, error)

	// EnsureGuestSecret atomically installs candidate as the guest's secret
	// if none is set, and returns whichever secret is in effect afterwards.
	// Two concurrent issuances must end up with the same secret.
	EnsureGuestSecret(ctx context.Context, guestID int64, candidate string) (string, error)
}

// KeyResolver derives the effective HMAC key for a guest: the process-wide
// secret concatenated with the guest's own secret. Rotating either half
// invalidates every outstanding token for that guest.
type KeyResolver struct {
	processSecret []byte
	store         SecretStore
}

func NewKeyResolver(processSecret string, store SecretStore) *KeyResolver {
	return &KeyResolver{processSecret: []byte(processSecret), store: store}
}

// NewGuestSecret generates a fresh URL-safe guest secret.
func NewGuestSecret() (string, error) {
	buf := make([]byte, GuestSecretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate guest secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ResolveForIssue returns the signing key for issuance, lazily creating the
// guest secret on first use.
func (r *KeyResolver) ResolveForIssue(ctx context.Context, guestID int64) ([]byte, error) {
	candidate, err := NewGuestSecret()
	if err != nil {
		return nil, err
	}
	secret, err := r.store.EnsureGuestSecret(ctx, guestID, candidate)
	if err != nil {
		return nil, fmt.Errorf("ensure guest secret: %w", err)
	}
	return r.key(secret), nil
}

// ResolveForVerify returns the signing key for verification. Verification
// never creates secrets: an absent one means the token cannot be valid.
func (r *KeyResolver) ResolveForVerify(ctx context.Context, guestID int64) ([]byte, error) {
	secret, err := r.store.GetGuestSecret(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("load guest secret: %w", err)
	}
	if secret == nil || *secret == "" {
		return nil, ErrUnknownGuest
	}
	return r.key(*secret), nil
}

func (r *KeyResolver) key(guestSecret string) []byte {
	key := make([]byte, 0, len(r.processSecret)+len(guestSecret))
	key = append(key, r.processSecret...)
	key = append(key, guestSecret...)
	return key
}
