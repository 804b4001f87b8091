package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the signed content of a QR token: a guest identity and a
// freshness bound, nothing else. No authorization claims are carried.
type Payload struct {
	GuestID int64 `json:"guest_id"`
	Exp     int64 `json:"exp"`
}

// Codec serializes and deserializes the wire token format. It has no
// cryptographic logic: signatures pass through as opaque hex strings.
//
// Wire format: base64( payload_json + "." + hex_signature ).
type Codec struct{}

func (Codec) Encode(payloadJSON []byte, signature string) string {
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, payloadJSON...), append([]byte("."), signature...)...))
}

// Decode reverses Encode. The decoded content is split on the FIRST dot:
// payload JSON cannot contain an unescaped raw dot before the separator.
func (Codec) Decode(wire string) (Payload, []byte, string, error) {
	wire = strings.TrimSpace(wire)

	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		// QR scanners routinely strip padding.
		raw, err = base64.RawStdEncoding.DecodeString(wire)
		if err != nil {
			return Payload{}, nil, "", fmt.Errorf("%w: bad base64: %v", ErrMalformedToken, err)
		}
	}

	idx := strings.Index(string(raw), ".")
	if idx < 0 {
		return Payload{}, nil, "", fmt.Errorf("%w: missing separator", ErrMalformedToken)
	}

	payloadJSON := raw[:idx]
	signature := string(raw[idx+1:])

	var fields struct {
		GuestID *int64 `json:"guest_id"`
		Exp     *int64 `json:"exp"`
	}
	if err := json.Unmarshal(payloadJSON, &fields); err != nil {
		return Payload{}, nil, "", fmt.Errorf("%w: payload is not valid JSON: %v", ErrMalformedToken, err)
	}
	if fields.GuestID == nil || fields.Exp == nil {
		return Payload{}, nil, "", fmt.Errorf("%w: payload missing guest_id or exp", ErrMalformedToken)
	}

	return Payload{GuestID: *fields.GuestID, Exp: *fields.Exp}, payloadJSON, signature, nil
}
