package models

import (
	"time"
)

// ScanEvent is the message published to Kafka and fanned out to live SSE
// subscribers after each scan attempt.
type ScanEvent struct {
	EventID     string     `json:"event_id"`
	GuestID     *int64     `json:"guest_id,omitempty"`
	GuestName   string     `json:"guest_name,omitempty"`
	Hall        string     `json:"hall,omitempty"`
	Status      string     `json:"status"`
	TokenHash   string     `json:"token_hash,omitempty"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	ScannedAt   time.Time  `json:"scanned_at"`
}
