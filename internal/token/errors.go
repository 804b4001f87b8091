package token

import "errors"

// Verification failure classes. Handlers map these onto the public response
// contract; the audit log keeps the specific class.
var (
	// ErrMalformedToken covers every structural defect: bad base64, missing
	// separator, non-JSON payload, missing fields, non-hex signature.
	ErrMalformedToken = errors.New("malformed token")

	// ErrTokenExpired means the payload decoded fine but exp is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrUnknownGuest means the referenced guest does not exist or has no
	// secret on record. An absent secret is never treated as an empty key.
	ErrUnknownGuest = errors.New("unknown guest")

	// ErrSignatureMismatch means the recomputed HMAC does not match.
	ErrSignatureMismatch = errors.New("token signature mismatch")
)
