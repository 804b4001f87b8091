package checkin_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-checkin/internal/audit"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	outcome   checkin.Outcome
	gotToken  string
	gotIP     string
	gotStaff  *string
	callCount int
}

func (s *stubService) CheckIn(_ context.Context, rawToken, ip, userAgent string, checkedInBy *string) checkin.Outcome {
	s.callCount++
	s.gotToken = rawToken
	s.gotIP = ip
	s.gotStaff = checkedInBy
	return s.outcome
}

type stubIssuer struct {
	wire string
	err  error
}

func (s *stubIssuer) Issue(context.Context, int64) (string, error) {
	return s.wire, s.err
}

type stubDB struct {
	guest         *models.Guest
	guestErr      error
	attendance    *models.Attendance
	rotatedSecret string
	rotateErr     error
	attendances   int
	scanCounts    map[string]int
}

func (s *stubDB) GetGuestByID(_ context.Context, id int64) (*models.Guest, error) {
	return s.guest, s.guestErr
}

func (s *stubDB) GetAttendanceByGuest(context.Context, int64) (*models.Attendance, error) {
	return s.attendance, nil
}

func (s *stubDB) RotateGuestSecret(_ context.Context, _ int64, secret string) error {
	if s.rotateErr != nil {
		return s.rotateErr
	}
	s.rotatedSecret = secret
	return nil
}

func (s *stubDB) CountAttendances(context.Context) (int, error) {
	return s.attendances, nil
}

func (s *stubDB) CountScansByStatus(context.Context) (map[string]int, error) {
	return s.scanCounts, nil
}

func newTestHandler(service *stubService, issuer *stubIssuer, db *stubDB) *Handler {
	return &Handler{
		Service:  service,
		Issuer:   issuer,
		DB:       db,
		Logger:   &logger.Logger{},
		TokenTTL: time.Hour,
	}
}

func newStaffRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/guests/{guestID}/qr-token", h.QRToken)
	r.Get("/api/guests/{guestID}/qr.png", h.QRImage)
	r.Post("/api/guests/{guestID}/qr-secret/rotate", h.RotateSecret)
	r.Get("/api/attendance/stats", h.AttendanceStats)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func postCheckIn(h *Handler, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/attendance/check-in", strings.NewReader(payload))
	req.RemoteAddr = "192.0.2.10:52000"
	rec := httptest.NewRecorder()
	h.CheckIn(rec, req)
	return rec
}

func TestCheckInHandlerSuccess(t *testing.T) {
	now := time.Now()
	service := &stubService{outcome: checkin.Outcome{
		Status:     models.ScanStatusCheckedIn,
		HTTPStatus: http.StatusOK,
		Guest:      &models.GuestSnapshot{ID: 7, Name: "Alice", Hall: "Main Hall"},
		CheckedInAt: &now,
	}}
	h := newTestHandler(service, &stubIssuer{}, &stubDB{})

	rec := postCheckIn(h, `{"token":"the-wire-token"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Check-in successful", body["message"])
	assert.NotNil(t, body["guest"])
	assert.NotNil(t, body["checked_in_at"])

	assert.Equal(t, "the-wire-token", service.gotToken)
	assert.Equal(t, "192.0.2.10", service.gotIP)
	assert.Nil(t, service.gotStaff)
}

func TestCheckInHandlerAlreadyCheckedIn(t *testing.T) {
	service := &stubService{outcome: checkin.Outcome{
		Status:     models.ScanStatusAlreadyCheckedIn,
		HTTPStatus: http.StatusConflict,
		Guest:      &models.GuestSnapshot{ID: 7, Name: "Alice"},
	}}
	h := newTestHandler(service, &stubIssuer{}, &stubDB{})

	rec := postCheckIn(h, `{"token":"the-wire-token"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["already_checked_in"])
	assert.Equal(t, "Guest has already checked in", body["message"])
	assert.NotNil(t, body["guest"])
}

func TestCheckInHandlerErrorBodies(t *testing.T) {
	cases := []struct {
		name      string
		status    string
		httpCode  int
		wantError string
	}{
		{"expired", models.ScanStatusExpired, http.StatusBadRequest, "QR code has expired"},
		{"invalid", models.ScanStatusInvalid, http.StatusBadRequest, "Invalid QR code"},
		{"not found", models.ScanStatusNotFound, http.StatusNotFound, "Guest not found"},
		{"server error", models.ScanStatusError, http.StatusInternalServerError, "Server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubService{outcome: checkin.Outcome{Status: tc.status, HTTPStatus: tc.httpCode}}
			h := newTestHandler(service, &stubIssuer{}, &stubDB{})

			rec := postCheckIn(h, `{"token":"whatever"}`)

			assert.Equal(t, tc.httpCode, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tc.wantError, body["error"])
		})
	}
}

func TestCheckInHandlerBadBodyFlowsThroughService(t *testing.T) {
	service := &stubService{outcome: checkin.Outcome{Status: models.ScanStatusInvalid, HTTPStatus: http.StatusBadRequest}}
	h := newTestHandler(service, &stubIssuer{}, &stubDB{})

	rec := postCheckIn(h, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Invalid QR code", body["error"])
	// The undecodable body reaches the service as an empty token so the
	// attempt is still audited like any other scan.
	assert.Equal(t, 1, service.callCount)
	assert.Equal(t, "", service.gotToken)
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string) (int64, error) {
	return 0, token.ErrMalformedToken
}

func TestCheckInHandlerBadBodyLeavesOneAuditRow(t *testing.T) {
	recorder := &recordingAudit{}
	service := checkin.NewService(rejectingVerifier{}, &stubDB{}, checkin.NewEngine(nil), recorder, nil)
	h := newTestHandler(nil, &stubIssuer{}, &stubDB{})
	h.Service = service

	rec := postCheckIn(h, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Invalid QR code", body["error"])

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, models.ScanStatusInvalid, entry.Status)
	assert.Equal(t, http.StatusBadRequest, entry.HTTPStatus)
	// No token was supplied, so no hash is recorded.
	assert.Empty(t, entry.TokenHash)
	assert.Equal(t, "192.0.2.10", entry.IPAddress)
}

func TestQRTokenEndpoint(t *testing.T) {
	db := &stubDB{guest: &models.Guest{ID: 7, Name: "Alice"}}
	h := newTestHandler(&stubService{}, &stubIssuer{wire: "signed-wire-token"}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/guests/7/qr-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(7), body["guest_id"])
	assert.Equal(t, "signed-wire-token", body["token"])
}

func TestQRTokenIncludesArrivalState(t *testing.T) {
	checkedInAt := time.Date(2026, 8, 28, 19, 30, 0, 0, time.UTC)
	db := &stubDB{
		guest:      &models.Guest{ID: 7, Name: "Alice"},
		attendance: &models.Attendance{ID: 1, GuestID: 7, CheckedInAt: checkedInAt},
	}
	h := newTestHandler(&stubService{}, &stubIssuer{wire: "signed-wire-token"}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/guests/7/qr-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "signed-wire-token", body["token"])
	assert.NotNil(t, body["checked_in_at"])
}

func TestQRTokenUnknownGuest(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubIssuer{wire: "x"}, &stubDB{guest: nil})
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/guests/42/qr-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Guest not found", body["error"])
}

func TestQRTokenBadGuestID(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubIssuer{}, &stubDB{})
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/guests/not-a-number/qr-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQRTokenIssueFailure(t *testing.T) {
	db := &stubDB{guest: &models.Guest{ID: 7}}
	h := newTestHandler(&stubService{}, &stubIssuer{err: errors.New("no signing key")}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/guests/7/qr-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQRImageEndpoint(t *testing.T) {
	db := &stubDB{guest: &models.Guest{ID: 7}}
	h := newTestHandler(&stubService{}, &stubIssuer{wire: "signed-wire-token"}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/guests/7/qr.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	// PNG magic bytes.
	require.Greater(t, rec.Body.Len(), 8)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestRotateSecretEndpoint(t *testing.T) {
	db := &stubDB{guest: &models.Guest{ID: 7}}
	h := newTestHandler(&stubService{}, &stubIssuer{}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/guests/7/qr-secret/rotate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["rotated"])
	assert.NotEmpty(t, db.rotatedSecret)
}

func TestRotateSecretStorageFailure(t *testing.T) {
	db := &stubDB{guest: &models.Guest{ID: 7}, rotateErr: errors.New("write failed")}
	h := newTestHandler(&stubService{}, &stubIssuer{}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/guests/7/qr-secret/rotate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAttendanceStatsDatabaseFallback(t *testing.T) {
	db := &stubDB{
		attendances: 12,
		scanCounts: map[string]int{
			models.ScanStatusCheckedIn: 12,
			models.ScanStatusExpired:   3,
		},
	}
	// No Redis configured, the handler goes straight to the database.
	h := newTestHandler(&stubService{}, &stubIssuer{}, db)
	router := newStaffRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/attendance/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(12), body["checked_in_count"])
	counts, ok := body["scan_counts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), counts[models.ScanStatusExpired])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "192.0.2.10:52000"
	assert.Equal(t, "192.0.2.10", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}
