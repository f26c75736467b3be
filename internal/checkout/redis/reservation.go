package redis

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

const reservationKeyPrefix = "resv:"

// Tracker mirrors pending-booking reservations into Redis with a TTL matching
// the gateway session. The webhook's expired event stays authoritative; the
// keyspace-expiry notification is a local sweep that catches abandoned
// checkouts when the gateway is slow to report, and every consumer of these
// signals is idempotent.
type Tracker struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewTracker(client *redis.Client, log *logger.Logger) *Tracker {
	return &Tracker{Client: client, Logger: log}
}

// Track records a pending booking's reservation window.
func (t *Tracker) Track(ctx context.Context, bookingID string, ttl time.Duration) error {
	key := reservationKeyPrefix + bookingID
	ok, err := t.Client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		t.Logger.Warn("REDIS", fmt.Sprintf("Reservation marker already exists for booking %s", bookingID))
	}
	return nil
}

// Clear drops the marker once a booking reaches a terminal state.
func (t *Tracker) Clear(ctx context.Context, bookingID string) error {
	_, err := t.Client.Del(ctx, reservationKeyPrefix+bookingID).Result()
	return err
}

// BookingIDFromExpiredKey extracts the booking id from a keyspace expiry
// payload, returning false for unrelated keys.
func BookingIDFromExpiredKey(key string) (string, bool) {
	if len(key) <= len(reservationKeyPrefix) || key[:len(reservationKeyPrefix)] != reservationKeyPrefix {
		return "", false
	}
	return key[len(reservationKeyPrefix):], true
}
