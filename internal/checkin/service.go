package checkin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/token"
)

// GuestStore looks up guest records. A missing guest is (nil, nil), not an
// error: absence is an expected outcome, not a storage failure.
type GuestStore interface {
	GetGuestByID(ctx context.Context, id int64) (*models.Guest, error)
}

// Verifier is the token authentication core the service consumes.
type Verifier interface {
	Verify(ctx context.Context, wire string) (int64, error)
}

// Recorder is the best-effort audit sink.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Outcome is the classified result of one check-in attempt, already mapped
// to the fixed HTTP contract.
type Outcome struct {
	Status      string
	HTTPStatus  int
	Guest       *models.GuestSnapshot
	CheckedInAt *time.Time
}

// Service composes verification, the check-in transition and audit logging.
// Every attempt, whatever its fate, leaves exactly one scan log row.
type Service struct {
	Auth   Verifier
	Guests GuestStore
	Engine *Engine
	Audit  Recorder
	Logger *logger.Logger
}

func NewService(auth Verifier, guests GuestStore, engine *Engine, recorder Recorder, log *logger.Logger) *Service {
	return &Service{Auth: auth, Guests: guests, Engine: engine, Audit: recorder, Logger: log}
}

// CheckIn runs the full scan flow for a raw wire token. It never returns an
// error: failures are classified into the outcome and the details go to the
// audit log only.
func (s *Service) CheckIn(ctx context.Context, rawToken, ip, userAgent string, checkedInBy *string) (outcome Outcome) {
	// Hash up front: the audit row needs it whatever happens next. A request
	// with no token at all gets no hash.
	entry := audit.Entry{
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if rawToken != "" {
		entry.TokenHash = audit.TokenHash(rawToken)
	}

	defer func() {
		if rec := recover(); rec != nil {
			if s.Logger != nil {
				s.Logger.Error("CHECKIN", fmt.Sprintf("panic during check-in: %v", rec))
			}
			entry.Status = models.ScanStatusError
			entry.HTTPStatus = http.StatusInternalServerError
			entry.ExceptionClass = "Panic"
			entry.ErrorMessage = fmt.Sprintf("%v", rec)
			s.Audit.Record(ctx, entry)
			outcome = Outcome{Status: models.ScanStatusError, HTTPStatus: http.StatusInternalServerError}
		}
	}()

	guestID, err := s.Auth.Verify(ctx, rawToken)
	if err != nil {
		return s.fail(ctx, entry, err)
	}

	guest, err := s.Guests.GetGuestByID(ctx, guestID)
	if err != nil {
		return s.fail(ctx, entry, fmt.Errorf("guest lookup: %w", err))
	}
	if guest == nil {
		return s.fail(ctx, entry, token.ErrUnknownGuest)
	}

	entry.GuestID = &guest.ID
	entry.GuestName = guest.Name
	entry.Hall = guest.Hall

	attendance, created, err := s.Engine.Attempt(ctx, guest.ID, ip, checkedInBy)
	if err != nil {
		return s.fail(ctx, entry, err)
	}

	checkedInAt := attendance.CheckedInAt
	entry.CheckedInAt = &checkedInAt
	snapshot := guest.Snapshot(&checkedInAt)

	if !created {
		entry.Status = models.ScanStatusAlreadyCheckedIn
		entry.HTTPStatus = http.StatusConflict
		s.Audit.Record(ctx, entry)
		if s.Logger != nil {
			s.Logger.LogScan(models.ScanStatusAlreadyCheckedIn, guest.ID, fmt.Sprintf("repeat scan, first check-in was %s", checkedInAt.Format(time.RFC3339)))
		}
		return Outcome{
			Status:      models.ScanStatusAlreadyCheckedIn,
			HTTPStatus:  http.StatusConflict,
			Guest:       &snapshot,
			CheckedInAt: &checkedInAt,
		}
	}

	entry.Status = models.ScanStatusCheckedIn
	entry.HTTPStatus = http.StatusOK
	s.Audit.Record(ctx, entry)
	if s.Logger != nil {
		s.Logger.LogScan(models.ScanStatusCheckedIn, guest.ID, fmt.Sprintf("%s checked in", guest.Name))
	}
	return Outcome{
		Status:      models.ScanStatusCheckedIn,
		HTTPStatus:  http.StatusOK,
		Guest:       &snapshot,
		CheckedInAt: &checkedInAt,
	}
}

// fail classifies an error, audits it and maps it onto the response table.
// Malformed tokens and signature mismatches collapse into one public
// "invalid" bucket so error responses leak nothing about which check failed;
// the audit row keeps the specific class for operators.
func (s *Service) fail(ctx context.Context, entry audit.Entry, err error) Outcome {
	status, httpStatus := classify(err)

	entry.Status = status
	entry.HTTPStatus = httpStatus
	entry.ExceptionClass = exceptionClass(err)
	entry.ErrorMessage = err.Error()
	s.Audit.Record(ctx, entry)

	if status == models.ScanStatusError && s.Logger != nil {
		s.Logger.Error("CHECKIN", fmt.Sprintf("check-in failed: %v", err))
	}

	return Outcome{Status: status, HTTPStatus: httpStatus}
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return models.ScanStatusExpired, http.StatusBadRequest
	case errors.Is(err, token.ErrMalformedToken), errors.Is(err, token.ErrSignatureMismatch):
		return models.ScanStatusInvalid, http.StatusBadRequest
	case errors.Is(err, token.ErrUnknownGuest):
		return models.ScanStatusNotFound, http.StatusNotFound
	default:
		return models.ScanStatusError, http.StatusInternalServerError
	}
}

func exceptionClass(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "TokenExpired"
	case errors.Is(err, token.ErrMalformedToken):
		return "MalformedToken"
	case errors.Is(err, token.ErrSignatureMismatch):
		return "SignatureMismatch"
	case errors.Is(err, token.ErrUnknownGuest):
		return "UnknownGuest"
	default:
		return "StorageFailure"
	}
}
