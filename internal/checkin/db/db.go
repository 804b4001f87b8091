package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetGuestByID returns (nil, nil) when the guest does not exist.
func (d *DB) GetGuestByID(ctx context.Context, id int64) (*models.Guest, error) {
	var guest models.Guest
	err := d.Bun.NewSelect().
		Model(&guest).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &guest, nil
}

// GetGuestSecret returns (nil, nil) when the guest is missing or has no
// secret yet. Callers must not treat that as an empty key.
func (d *DB) GetGuestSecret(ctx context.Context, guestID int64) (*string, error) {
	guest, err := d.GetGuestByID(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, nil
	}
	return guest.QRSecret, nil
}

// EnsureGuestSecret installs candidate as the guest's secret only if none is
// set yet, then reads back whichever secret won. The conditional UPDATE makes
// concurrent first issuances converge on a single secret instead of racing a
// read against a write.
func (d *DB) EnsureGuestSecret(ctx context.Context, guestID int64, candidate string) (string, error) {
	_, err := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Set("qr_secret = ?", candidate).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", guestID).
		Where("qr_secret IS NULL").
		Exec(ctx)
	if err != nil {
		return "", err
	}

	secret, err := d.GetGuestSecret(ctx, guestID)
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", fmt.Errorf("guest %d not found", guestID)
	}
	return *secret, nil
}

// RotateGuestSecret unconditionally replaces the guest's secret, invalidating
// every previously issued token for that guest.
func (d *DB) RotateGuestSecret(ctx context.Context, guestID int64, secret string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Guest)(nil)).
		Set("qr_secret = ?", secret).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", guestID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("guest %d not found", guestID)
	}
	return nil
}

// CreateAttendanceIfAbsent is the atomic check-in primitive. The insert rides
// on the unique constraint over guest_id: under concurrent scans exactly one
// caller creates the row and sees wasCreated=true, the rest read it back.
func (d *DB) CreateAttendanceIfAbsent(ctx context.Context, guestID int64, ip string, checkedInBy *string, at time.Time) (*models.Attendance, bool, error) {
	attendance := models.Attendance{
		GuestID:     guestID,
		CheckedInAt: at,
		IPAddress:   ip,
		CheckedInBy: checkedInBy,
	}

	res, err := d.Bun.NewInsert().
		Model(&attendance).
		On("CONFLICT (guest_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	// Read back the canonical row either way; on conflict the insert left
	// the existing one untouched.
	var existing models.Attendance
	err = d.Bun.NewSelect().
		Model(&existing).
		Where("guest_id = ?", guestID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, false, err
	}

	return &existing, affected == 1, nil
}

// GetAttendanceByGuest returns (nil, nil) when the guest has not checked in.
func (d *DB) GetAttendanceByGuest(ctx context.Context, guestID int64) (*models.Attendance, error) {
	var attendance models.Attendance
	err := d.Bun.NewSelect().
		Model(&attendance).
		Where("guest_id = ?", guestID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attendance, nil
}

// AppendScanLog adds one audit row. Rows are never updated or deleted here.
func (d *DB) AppendScanLog(ctx context.Context, log *models.ScanLog) error {
	_, err := d.Bun.NewInsert().Model(log).Exec(ctx)
	return err
}

// CountAttendances is the DB fallback behind the live Redis counter.
func (d *DB) CountAttendances(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().Model((*models.Attendance)(nil)).Count(ctx)
}

// CountScansByStatus aggregates the audit trail for the stats endpoint.
func (d *DB) CountScansByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := d.Bun.NewSelect().
		Model((*models.ScanLog)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
