package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-booking/internal/checkout"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

const codeInsertAttempts = 5

// DB is the bun-backed storage layer for bookings and tickets.
type DB struct {
	Bun *bun.DB
}

// IDB exposes the plain (non-transactional) bun handle for read paths.
func (d *DB) IDB() bun.IDB {
	return d.Bun
}

// RunInTx wraps fn in a single database transaction. The orchestrator uses it
// as the one boundary around reserve → create booking/tickets → settle, so a
// failure anywhere rolls everything back together.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, idb bun.IDB) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

// isUniqueViolation matches the duplicate-key error text of both postgres and
// the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}

// insertAttempt runs one INSERT inside its own savepoint. A unique-violation
// on postgres aborts the enclosing transaction (SQLSTATE 25P02); rolling the
// savepoint back keeps the checkout transaction usable so the caller can
// retry with a fresh code. On a plain *bun.DB handle this degrades to a
// throwaway transaction around the single statement.
func insertAttempt(ctx context.Context, idb bun.IDB, model interface{}) error {
	return idb.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(model).Exec(ctx)
		return err
	})
}

// CreateBooking inserts the booking, retrying with a freshly generated
// booking code when the unique constraint rejects a collision. Generation
// failure on collision must never fail the booking itself.
func (d *DB) CreateBooking(ctx context.Context, idb bun.IDB, booking *models.Booking) error {
	for attempt := 0; attempt < codeInsertAttempts; attempt++ {
		err := insertAttempt(ctx, idb, booking)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("booking insert failed: %w", err)
		}
		booking.BookingCode = checkout.GenerateBookingCode()
	}
	return fmt.Errorf("booking code collision persisted after %d attempts", codeInsertAttempts)
}

// CreateTickets inserts the tickets one by one with the same
// collision-retry strategy on ticket codes.
func (d *DB) CreateTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error {
	for i := range tickets {
		ticket := &tickets[i]
		var lastErr error
		inserted := false
		for attempt := 0; attempt < codeInsertAttempts; attempt++ {
			err := insertAttempt(ctx, idb, ticket)
			if err == nil {
				inserted = true
				break
			}
			if !isUniqueViolation(err) {
				return fmt.Errorf("ticket insert failed: %w", err)
			}
			lastErr = err
			ticket.TicketCode = checkout.GenerateTicketCode()
		}
		if !inserted {
			return fmt.Errorf("ticket code collision persisted: %w", lastErr)
		}
	}
	return nil
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingBySession resolves the booking a gateway webhook refers to.
func (d *DB) GetBookingBySession(ctx context.Context, idb bun.IDB, sessionID string) (*models.Booking, error) {
	var b models.Booking
	err := idb.NewSelect().
		Model(&b).
		Where("stripe_session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingForUpdate reloads a booking inside a transaction. On postgres the
// row is locked so two webhook deliveries for the same booking serialize; the
// sqlite test dialect ignores FOR UPDATE semantics but serializes writes
// anyway.
func (d *DB) GetBookingForUpdate(ctx context.Context, idb bun.IDB, id string) (*models.Booking, error) {
	var b models.Booking
	q := idb.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1)
	if d.Bun.Dialect().Name().String() == "pg" {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return &b, nil
}

// ErrInvalidTransition is returned when a requested payment-state move is not
// in the transition table.
var ErrInvalidTransition = errors.New("invalid payment status transition")

// TransitionPayment moves a booking between payment states. The enumerated
// transition table is enforced twice: in Go before issuing the update, and in
// SQL through the WHERE clause, so a stale in-memory state cannot slip an
// illegal move past a concurrent writer.
func (d *DB) TransitionPayment(ctx context.Context, idb bun.IDB, booking *models.Booking, to models.PaymentStatus) error {
	if !booking.PaymentStatus.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.PaymentStatus, to)
	}

	res, err := idb.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", to).
		Set("settled_at = ?", booking.SettledAt).
		Set("stripe_cents = ?", booking.StripeCents).
		Where("id = ?", booking.ID).
		Where("payment_status = ?", booking.PaymentStatus).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("payment transition failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidTransition, booking.ID)
	}
	booking.PaymentStatus = to
	return nil
}

// SetStripeSession persists the gateway session id on a pending booking.
func (d *DB) SetStripeSession(ctx context.Context, idb bun.IDB, bookingID, sessionID string) error {
	_, err := idb.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("stripe_session_id = ?", sessionID).
		Where("id = ?", bookingID).
		Exec(ctx)
	return err
}

// CancelTickets cancels every ticket of a failed booking en masse.
func (d *DB) CancelTickets(ctx context.Context, idb bun.IDB, bookingID string) error {
	_, err := idb.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCancelled).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.TicketValid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ticket cancellation failed: %w", err)
	}
	return nil
}

func (d *DB) GetTicketsByBooking(ctx context.Context, bookingID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("booking_id = ?", bookingID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetBookingWithTickets serves the post-redirect status lookup from the UI.
func (d *DB) GetBookingWithTickets(ctx context.Context, bookingID string) (*models.BookingWithTickets, error) {
	booking, err := d.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	tickets, err := d.GetTicketsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return &models.BookingWithTickets{Booking: *booking, Tickets: tickets}, nil
}
