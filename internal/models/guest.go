package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Guest struct {
	bun.BaseModel `bun:"table:guests"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Phone     string    `bun:"phone,nullzero" json:"phone"`
	TableName string    `bun:"table_name,nullzero" json:"table"`
	Hall      string    `bun:"hall,nullzero" json:"hall"`
	QRSecret  *string   `bun:"qr_secret,nullzero" json:"-"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// GuestSnapshot is the guest view returned to the kiosk after a scan.
type GuestSnapshot struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Table       string     `json:"table"`
	Hall        string     `json:"hall"`
	Phone       string     `json:"phone"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
}

func (g *Guest) Snapshot(checkedInAt *time.Time) GuestSnapshot {
	return GuestSnapshot{
		ID:          g.ID,
		Name:        g.Name,
		Table:       g.TableName,
		Hall:        g.Hall,
		Phone:       g.Phone,
		CheckedInAt: checkedInAt,
	}
}
