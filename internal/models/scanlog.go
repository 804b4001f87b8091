package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Scan statuses recorded in scan_logs.
const (
	ScanStatusCheckedIn        = "checked_in"
	ScanStatusAlreadyCheckedIn = "already_checked_in"
	ScanStatusExpired          = "expired"
	ScanStatusInvalid          = "invalid"
	ScanStatusNotFound         = "not_found"
	ScanStatusError            = "error"
)

// ScanLog is the append-only audit trail: one row per check-in attempt,
// whatever the outcome. Rows are never updated or deleted.
type ScanLog struct {
	bun.BaseModel `bun:"table:scan_logs"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	GuestID        *int64    `bun:"guest_id,nullzero" json:"guest_id,omitempty"`
	Status         string    `bun:"status,notnull" json:"status"`
	HTTPStatus     int       `bun:"http_status,nullzero" json:"http_status"`
	TokenHash      *string   `bun:"token_hash,nullzero" json:"token_hash,omitempty"`
	ExceptionClass *string   `bun:"exception_class,nullzero" json:"exception_class,omitempty"`
	ErrorMessage   *string   `bun:"error_message,nullzero" json:"error_message,omitempty"`
	IPAddress      string    `bun:"ip_address,nullzero" json:"ip_address"`
	UserAgent      string    `bun:"user_agent,nullzero" json:"user_agent"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
