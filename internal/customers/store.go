package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Store owns the customer rows and their rollup statistics.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// FindOrCreateByEmail returns the existing customer for the email or inserts
// a fresh one with zeroed rollups.
func (s *Store) FindOrCreateByEmail(ctx context.Context, idb bun.IDB, info models.CustomerInfo) (*models.Customer, error) {
	var c models.Customer
	err := idb.NewSelect().
		Model(&c).
		Where("email = ?", info.Email).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	c = models.Customer{
		ID:        uuid.NewString(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: time.Now(),
	}
	if _, err := idb.NewInsert().Model(&c).Exec(ctx); err != nil {
		// A concurrent checkout may have inserted the same email first.
		var existing models.Customer
		selErr := idb.NewSelect().
			Model(&existing).
			Where("email = ?", info.Email).
			Limit(1).
			Scan(ctx)
		if selErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("customer insert failed: %w", err)
	}
	return &c, nil
}

// RecordPaidBooking bumps the rollups. Called exactly once per booking, from
// whichever settlement path moved it to paid.
func (s *Store) RecordPaidBooking(ctx context.Context, idb bun.IDB, customerID string, amountCents int64) error {
	_, err := idb.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("total_bookings = total_bookings + 1").
		Set("total_spent_cents = total_spent_cents + ?", amountCents).
		Where("id = ?", customerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("customer aggregate update failed: %w", err)
	}
	return nil
}
