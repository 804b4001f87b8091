package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/google/uuid"
)

// ScanLogStore appends one audit row per scan attempt.
type ScanLogStore interface {
	AppendScanLog(ctx context.Context, log *models.ScanLog) error
}

// EventPublisher streams scan events to Kafka.
type EventPublisher interface {
	PublishScanRecorded(event models.ScanEvent) error
	PublishGuestCheckedIn(event models.ScanEvent) error
}

// LiveFeed fans scan events out to connected SSE dashboards.
type LiveFeed interface {
	Emit(event models.ScanEvent)
}

// Counters keeps best-effort live tallies (Redis).
type Counters interface {
	RecordScan(ctx context.Context, status string)
}

// Entry is everything the recorder knows about one scan attempt.
type Entry struct {
	GuestID        *int64
	GuestName      string
	Hall           string
	Status         string
	HTTPStatus     int
	TokenHash      string
	ExceptionClass string
	ErrorMessage   string
	IPAddress      string
	UserAgent      string
	CheckedInAt    *time.Time
}

// Recorder appends one ScanLog row per check-in attempt and fans the event
// out to Kafka, the live feed and the counters. Every sink is best-effort:
// a broken audit store must never take down check-in availability, so
// failures are logged and swallowed. The trade-off is a possible audit gap.
type Recorder struct {
	Store  ScanLogStore
	Events EventPublisher
	Feed   LiveFeed
	Stats  Counters
	Logger *logger.Logger
}

func NewRecorder(store ScanLogStore, log *logger.Logger) *Recorder {
	return &Recorder{Store: store, Logger: log}
}

// TokenHash hashes the raw wire token as supplied by the client, whether or
// not it verified. It lets operators correlate repeated scans of the same
// physical QR code without ever storing key material.
func TokenHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Record never propagates a failure to the caller.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := &models.ScanLog{
		GuestID:    e.GuestID,
		Status:     e.Status,
		HTTPStatus: e.HTTPStatus,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		CreatedAt:  time.Now(),
	}
	if e.TokenHash != "" {
		row.TokenHash = &e.TokenHash
	}
	if e.ExceptionClass != "" {
		row.ExceptionClass = &e.ExceptionClass
	}
	if e.ErrorMessage != "" {
		row.ErrorMessage = &e.ErrorMessage
	}

	if err := r.Store.AppendScanLog(ctx, row); err != nil {
		r.warn(fmt.Sprintf("failed to append scan log (status=%s): %v", e.Status, err))
	}

	event := models.ScanEvent{
		EventID:     uuid.New().String(),
		GuestID:     e.GuestID,
		GuestName:   e.GuestName,
		Hall:        e.Hall,
		Status:      e.Status,
		TokenHash:   e.TokenHash,
		CheckedInAt: e.CheckedInAt,
		ScannedAt:   time.Now(),
	}

	if r.Events != nil {
		if err := r.Events.PublishScanRecorded(event); err != nil {
			r.warn(fmt.Sprintf("failed to publish scan event: %v", err))
		}
		if e.Status == models.ScanStatusCheckedIn {
			if err := r.Events.PublishGuestCheckedIn(event); err != nil {
				r.warn(fmt.Sprintf("failed to publish check-in event: %v", err))
			}
		}
	}

	if r.Feed != nil {
		r.Feed.Emit(event)
	}

	if r.Stats != nil {
		r.Stats.RecordScan(ctx, e.Status)
	}
}

func (r *Recorder) warn(msg string) {
	if r.Logger != nil {
		r.Logger.Warn("AUDIT", msg)
	}
}
