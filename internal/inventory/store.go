package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrEventNotFound = errors.New("event not found")
	// ErrInsufficientStock means the conditional decrement found fewer
	// tickets than requested; the caller lost the race or asked for too many.
	ErrInsufficientStock = errors.New("not enough tickets available")
)

// Store owns the per-event available-ticket counters and the event status
// transitions driven by them. Methods take a bun.IDB so reservations join the
// checkout transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) GetEvent(ctx context.Context, idb bun.IDB, eventID string) (*models.Event, error) {
	var ev models.Event
	err := idb.NewSelect().
		Model(&ev).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Reserve decrements available_tickets by qty, conditioned on sufficient
// remaining stock. Compare-and-decrement, not read-then-write: concurrent
// bookings for the last tickets race on the WHERE clause and exactly one
// wins.
func (s *Store) Reserve(ctx context.Context, idb bun.IDB, eventID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reservation quantity must be positive, got %d", qty)
	}

	res, err := idb.NewUpdate().
		Model((*models.Event)(nil)).
		Set("available_tickets = available_tickets - ?", qty).
		Where("id = ?", eventID).
		Where("status = ?", models.EventActive).
		Where("available_tickets >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("inventory decrement failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Release is the compensating increment for an expired or abandoned
// reservation. Capped at capacity so a duplicated expiry event can never push
// the counter past its invariant, and a soldout event with returned stock
// flips back to active.
func (s *Store) Release(ctx context.Context, idb bun.IDB, eventID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}

	_, err := idb.NewUpdate().
		Model((*models.Event)(nil)).
		Set("available_tickets = available_tickets + ?", qty).
		Where("id = ?", eventID).
		Where("available_tickets + ? <= capacity", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("inventory release failed: %w", err)
	}

	_, err = idb.NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", models.EventActive).
		Where("id = ?", eventID).
		Where("status = ?", models.EventSoldOut).
		Where("available_tickets > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("event status update failed: %w", err)
	}
	return nil
}

// MarkSoldOutIfExhausted flips an active event to soldout once its counter
// reaches zero. Safe to call after every settlement; the WHERE clause makes
// it a no-op otherwise.
func (s *Store) MarkSoldOutIfExhausted(ctx context.Context, idb bun.IDB, eventID string) error {
	_, err := idb.NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", models.EventSoldOut).
		Where("id = ?", eventID).
		Where("status = ?", models.EventActive).
		Where("available_tickets = 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("soldout transition failed: %w", err)
	}
	return nil
}
