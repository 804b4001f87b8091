package token

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Authenticator issues and verifies signed guest tokens. This is the
// security-critical core: everything else trusts the guest ID it returns.
type Authenticator struct {
	codec Codec
	keys  *KeyResolver
	ttl   time.Duration

	// now is swappable for expiry boundary tests.
	now func() time.Time
}

func NewAuthenticator(processSecret string, store SecretStore, ttl time.Duration) *Authenticator {
	return &Authenticator{
		keys: NewKeyResolver(processSecret, store),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Issue builds a signed token for the guest, generating and persisting the
// guest secret if this is the first issuance.
func (a *Authenticator) Issue(ctx context.Context, guestID int64) (string, error) {
	key, err := a.keys.ResolveForIssue(ctx, guestID)
	if err != nil {
		return "", err
	}

	payload := Payload{
		GuestID: guestID,
		Exp:     a.now().Add(a.ttl).Unix(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	return a.codec.Encode(payloadJSON, sign(payloadJSON, key)), nil
}

// Verify checks a wire token and returns the guest ID it is bound to.
// Check order is fixed: structure, then guest/secret existence, then expiry,
// then signature. A token expiring exactly now is still valid.
func (a *Authenticator) Verify(ctx context.Context, wire string) (int64, error) {
	payload, payloadJSON, signature, err := a.codec.Decode(wire)
	if err != nil {
		return 0, err
	}

	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return 0, fmt.Errorf("%w: signature is not a sha256 hex digest", ErrMalformedToken)
	}

	key, err := a.keys.ResolveForVerify(ctx, payload.GuestID)
	if err != nil {
		return 0, err
	}

	if payload.Exp < a.now().Unix() {
		return 0, ErrTokenExpired
	}

	if !hmac.Equal(signBytes(payloadJSON, key), got) {
		return 0, ErrSignatureMismatch
	}

	return payload.GuestID, nil
}

func sign(payloadJSON, key []byte) string {
	return hex.EncodeToString(signBytes(payloadJSON, key))
}

func signBytes(payloadJSON, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payloadJSON)
	return mac.Sum(nil)
}
