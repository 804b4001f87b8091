package checkin_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	redisstats "ms-checkin/internal/checkin/redis"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/token"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

// CheckInService runs the scan flow and classifies the outcome.
type CheckInService interface {
	CheckIn(ctx context.Context, rawToken, ip, userAgent string, checkedInBy *string) checkin.Outcome
}

// TokenIssuer mints signed guest tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, guestID int64) (string, error)
}

// GuestDBLayer is the storage surface the handlers need beyond the service.
type GuestDBLayer interface {
	GetGuestByID(ctx context.Context, id int64) (*models.Guest, error)
	GetAttendanceByGuest(ctx context.Context, guestID int64) (*models.Attendance, error)
	RotateGuestSecret(ctx context.Context, guestID int64, secret string) error
	CountAttendances(ctx context.Context) (int, error)
	CountScansByStatus(ctx context.Context) (map[string]int, error)
}

type Handler struct {
	Service  CheckInService
	Issuer   TokenIssuer
	DB       GuestDBLayer
	Stats    *redisstats.Stats
	Logger   *logger.Logger
	TokenTTL time.Duration
}

// CheckIn handles the kiosk scan endpoint.
// Expected POST request body: {"token": "base64_wire_token"}
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Token string `json:"token"`
	}

	// A body that does not decode is still a scan attempt and must leave an
	// audit row like any other, so it flows through the service as an empty
	// token instead of short-circuiting here.
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		requestBody.Token = ""
	}

	// Staff devices attach their session token so we can record who scanned;
	// kiosks scan anonymously.
	var checkedInBy *string
	if bearer, err := auth.ExtractTokenFromRequest(r); err == nil {
		if staffID, err := auth.ExtractStaffIDFromJWT(bearer); err == nil {
			checkedInBy = &staffID
		}
	}

	outcome := h.Service.CheckIn(r.Context(), requestBody.Token, clientIP(r), r.UserAgent(), checkedInBy)

	switch outcome.Status {
	case models.ScanStatusCheckedIn:
		writeJSON(w, outcome.HTTPStatus, map[string]any{
			"success":       true,
			"message":       "Check-in successful",
			"guest":         outcome.Guest,
			"checked_in_at": outcome.CheckedInAt,
		})
	case models.ScanStatusAlreadyCheckedIn:
		writeJSON(w, outcome.HTTPStatus, map[string]any{
			"already_checked_in": true,
			"message":            "Guest has already checked in",
			"guest":              outcome.Guest,
		})
	case models.ScanStatusExpired:
		writeJSON(w, outcome.HTTPStatus, map[string]any{"error": "QR code has expired"})
	case models.ScanStatusInvalid:
		writeJSON(w, outcome.HTTPStatus, map[string]any{"error": "Invalid QR code"})
	case models.ScanStatusNotFound:
		writeJSON(w, outcome.HTTPStatus, map[string]any{"error": "Guest not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
	}
}

// QRToken returns the signed token for a guest (staff roster view).
func (h *Handler) QRToken(w http.ResponseWriter, r *http.Request) {
	guest, ok := h.lookupGuest(w, r)
	if !ok {
		return
	}

	wire, err := h.issueToken(r.Context(), guest.ID)
	if err != nil {
		h.Logger.Error("TOKEN", fmt.Sprintf("failed to issue token for guest %d: %v", guest.ID, err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}

	response := map[string]any{
		"guest_id": guest.ID,
		"token":    wire,
	}
	// The roster view shows arrival state next to each QR code.
	if attendance, err := h.DB.GetAttendanceByGuest(r.Context(), guest.ID); err == nil && attendance != nil {
		response["checked_in_at"] = attendance.CheckedInAt
	}

	writeJSON(w, http.StatusOK, response)
}

// QRImage renders the guest's token as a QR PNG for printing.
func (h *Handler) QRImage(w http.ResponseWriter, r *http.Request) {
	guest, ok := h.lookupGuest(w, r)
	if !ok {
		return
	}

	wire, err := h.issueToken(r.Context(), guest.ID)
	if err != nil {
		h.Logger.Error("TOKEN", fmt.Sprintf("failed to issue token for guest %d: %v", guest.ID, err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}

	png, err := qrcode.Encode(wire, qrcode.Medium, 256)
	if err != nil {
		h.Logger.Error("TOKEN", fmt.Sprintf("failed to render QR for guest %d: %v", guest.ID, err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// RotateSecret regenerates the guest's secret, invalidating every token
// issued before the rotation. When to rotate is the operator's call.
func (h *Handler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	guest, ok := h.lookupGuest(w, r)
	if !ok {
		return
	}

	secret, err := token.NewGuestSecret()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}
	if err := h.DB.RotateGuestSecret(r.Context(), guest.ID, secret); err != nil {
		h.Logger.Error("TOKEN", fmt.Sprintf("failed to rotate secret for guest %d: %v", guest.ID, err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}
	if h.Stats != nil {
		h.Stats.InvalidateToken(r.Context(), guest.ID)
	}
	h.Logger.LogSecurity("SECRET_ROTATED", fmt.Sprintf("guest %d secret rotated by staff %q", guest.ID, auth.StaffID(r.Context())))

	writeJSON(w, http.StatusOK, map[string]any{
		"guest_id": guest.ID,
		"rotated":  true,
	})
}

// AttendanceStats serves the dashboard counters, preferring the live Redis
// tallies and falling back to the database.
func (h *Handler) AttendanceStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Stats != nil {
		checkedIn, err := h.Stats.CheckedInCount(ctx)
		if err == nil {
			counts, err := h.Stats.ScanCounts(ctx)
			if err == nil {
				writeJSON(w, http.StatusOK, map[string]any{
					"checked_in_count": checkedIn,
					"scan_counts":      counts,
				})
				return
			}
		}
		h.Logger.Warn("STATS", "Redis counters unavailable, falling back to database")
	}

	checkedIn, err := h.DB.CountAttendances(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}
	counts, err := h.DB.CountScansByStatus(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checked_in_count": checkedIn,
		"scan_counts":      counts,
	})
}

func (h *Handler) issueToken(ctx context.Context, guestID int64) (string, error) {
	if h.Stats != nil {
		if cached := h.Stats.GetCachedToken(ctx, guestID); cached != "" {
			return cached, nil
		}
	}

	wire, err := h.Issuer.Issue(ctx, guestID)
	if err != nil {
		return "", err
	}

	if h.Stats != nil {
		h.Stats.CacheIssuedToken(ctx, guestID, wire, h.TokenTTL)
	}
	return wire, nil
}

func (h *Handler) lookupGuest(w http.ResponseWriter, r *http.Request) (*models.Guest, bool) {
	guestID, err := strconv.ParseInt(chi.URLParam(r, "guestID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid guest id"})
		return nil, false
	}

	guest, err := h.DB.GetGuestByID(r.Context(), guestID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		return nil, false
	}
	if guest == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Guest not found"})
		return nil, false
	}
	return guest, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
