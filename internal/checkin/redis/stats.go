package redis

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	checkedInCountKey = "checkin:checked_in_count"
	scanCountPrefix   = "checkin:scans:"
	issuedTokenPrefix = "checkin:qr_token:"
)

// Stats keeps live counters and an issued-token cache in Redis. Everything
// here is best-effort: the database stays the source of truth and callers
// fall back to it when Redis is down.
type Stats struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewStats(client *redis.Client, log *logger.Logger) *Stats {
	return &Stats{Client: client, Logger: log}
}

// RecordScan bumps the per-status counter, and the headline checked-in count
// for successful first scans. Failures are logged and swallowed.
func (s *Stats) RecordScan(ctx context.Context, status string) {
	if s.Client == nil {
		return
	}
	if err := s.Client.Incr(ctx, scanCountPrefix+status).Err(); err != nil {
		s.warn(fmt.Sprintf("failed to bump scan counter for %s: %v", status, err))
		return
	}
	if status == models.ScanStatusCheckedIn {
		if err := s.Client.Incr(ctx, checkedInCountKey).Err(); err != nil {
			s.warn(fmt.Sprintf("failed to bump checked-in counter: %v", err))
		}
	}
}

// CheckedInCount reads the headline counter. redis.Nil means no guest has
// checked in since the counter was last reset.
func (s *Stats) CheckedInCount(ctx context.Context) (int64, error) {
	if s.Client == nil {
		return 0, fmt.Errorf("redis client not initialized")
	}
	count, err := s.Client.Get(ctx, checkedInCountKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// ScanCounts returns the per-status tallies.
func (s *Stats) ScanCounts(ctx context.Context) (map[string]int64, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	statuses := []string{
		models.ScanStatusCheckedIn,
		models.ScanStatusAlreadyCheckedIn,
		models.ScanStatusExpired,
		models.ScanStatusInvalid,
		models.ScanStatusNotFound,
		models.ScanStatusError,
	}

	counts := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		count, err := s.Client.Get(ctx, scanCountPrefix+status).Int64()
		if err == redis.Nil {
			counts[status] = 0
			continue
		}
		if err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, nil
}

// CacheIssuedToken stores the most recently issued token for a guest so the
// roster view can re-render the QR without re-signing on every request.
func (s *Stats) CacheIssuedToken(ctx context.Context, guestID int64, token string, ttl time.Duration) {
	if s.Client == nil {
		return
	}
	key := fmt.Sprintf("%s%d", issuedTokenPrefix, guestID)
	if err := s.Client.Set(ctx, key, token, ttl).Err(); err != nil {
		s.warn(fmt.Sprintf("failed to cache issued token for guest %d: %v", guestID, err))
	}
}

// GetCachedToken returns "" when no token is cached for the guest.
func (s *Stats) GetCachedToken(ctx context.Context, guestID int64) string {
	if s.Client == nil {
		return ""
	}
	key := fmt.Sprintf("%s%d", issuedTokenPrefix, guestID)
	token, err := s.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		s.warn(fmt.Sprintf("failed to read cached token for guest %d: %v", guestID, err))
		return ""
	}
	return token
}

// InvalidateToken drops the cached token after a secret rotation.
func (s *Stats) InvalidateToken(ctx context.Context, guestID int64) {
	if s.Client == nil {
		return
	}
	key := fmt.Sprintf("%s%d", issuedTokenPrefix, guestID)
	if err := s.Client.Del(ctx, key).Err(); err != nil {
		s.warn(fmt.Sprintf("failed to invalidate cached token for guest %d: %v", guestID, err))
	}
}

func (s *Stats) warn(msg string) {
	if s.Logger != nil {
		s.Logger.Warn("REDIS", msg)
	}
}
