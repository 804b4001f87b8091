package checkin

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/models"
)

// AttendanceStore is the atomic primitive the engine runs on. The insert must
// respect the unique constraint on guest_id: concurrent calls for the same
// guest yield exactly one created row, everyone else observes it.
type AttendanceStore interface {
	CreateAttendanceIfAbsent(ctx context.Context, guestID int64, ip string, checkedInBy *string, at time.Time) (*models.Attendance, bool, error)
}

// Engine performs the one-way transition NOT_CHECKED_IN -> CHECKED_IN.
// There is no transition back; clearing attendance rows is an administrative
// action outside this service.
type Engine struct {
	DB  AttendanceStore
	now func() time.Time
}

func NewEngine(db AttendanceStore) *Engine {
	return &Engine{DB: db, now: time.Now}
}

// Attempt records the guest's arrival. When the guest is already checked in
// it returns the existing row unchanged and wasCreated=false; that path has
// no side effects.
func (e *Engine) Attempt(ctx context.Context, guestID int64, ip string, checkedInBy *string) (*models.Attendance, bool, error) {
	attendance, created, err := e.DB.CreateAttendanceIfAbsent(ctx, guestID, ip, checkedInBy, e.now())
	if err != nil {
		return nil, false, fmt.Errorf("attendance transition for guest %d: %w", guestID, err)
	}
	return attendance, created, nil
}
