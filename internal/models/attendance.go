package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Attendance records that a guest has arrived. A guest has at most one row,
// enforced by the unique constraint on guest_id.
type Attendance struct {
	bun.BaseModel `bun:"table:attendances"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	GuestID     int64     `bun:"guest_id,unique,notnull" json:"guest_id"`
	CheckedInAt time.Time `bun:"checked_in_at,notnull" json:"checked_in_at"`
	IPAddress   string    `bun:"ip_address,nullzero" json:"ip_address"`
	CheckedInBy *string   `bun:"checked_in_by,nullzero" json:"checked_in_by,omitempty"`
}
