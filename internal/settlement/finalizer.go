package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/checkout"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notification"

	"github.com/uptrace/bun"
)

type BookingStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, idb bun.IDB) error) error
	GetBookingBySession(ctx context.Context, idb bun.IDB, sessionID string) (*models.Booking, error)
	GetBookingForUpdate(ctx context.Context, idb bun.IDB, id string) (*models.Booking, error)
	TransitionPayment(ctx context.Context, idb bun.IDB, booking *models.Booking, to models.PaymentStatus) error
	CancelTickets(ctx context.Context, idb bun.IDB, bookingID string) error
}

type InventoryStore interface {
	GetEvent(ctx context.Context, idb bun.IDB, eventID string) (*models.Event, error)
	Release(ctx context.Context, idb bun.IDB, eventID string, qty int) error
	MarkSoldOutIfExhausted(ctx context.Context, idb bun.IDB, eventID string) error
}

type VoucherLedger interface {
	Redeem(ctx context.Context, idb bun.IDB, voucherID, bookingID string, amountCents int64) error
}

type CustomerStore interface {
	RecordPaidBooking(ctx context.Context, idb bun.IDB, customerID string, amountCents int64) error
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type Notifier interface {
	SendBookingConfirmation(ctx context.Context, bookingID, template string) error
}

type ReservationTracker interface {
	Clear(ctx context.Context, bookingID string) error
}

// Finalizer reconciles pending bookings when the gateway reports an outcome.
// Deliveries are at-least-once and may arrive out of order, so every effect
// is guarded by the booking's current state: replaying any event against a
// terminal booking is a no-op.
type Finalizer struct {
	DB           BookingStore
	Inventory    InventoryStore
	Vouchers     VoucherLedger
	Customers    CustomerStore
	Kafka        Publisher
	Notifier     Notifier
	Reservations ReservationTracker
	Templates    notification.TemplateSet

	cfg    *config.Config
	logger *logger.Logger
	now    func() time.Time
}

type Deps struct {
	DB           BookingStore
	Inventory    InventoryStore
	Vouchers     VoucherLedger
	Customers    CustomerStore
	Kafka        Publisher
	Notifier     Notifier
	Reservations ReservationTracker
	Templates    notification.TemplateSet
}

func NewFinalizer(deps Deps, cfg *config.Config, log *logger.Logger) *Finalizer {
	return &Finalizer{
		DB:           deps.DB,
		Inventory:    deps.Inventory,
		Vouchers:     deps.Vouchers,
		Customers:    deps.Customers,
		Kafka:        deps.Kafka,
		Notifier:     deps.Notifier,
		Reservations: deps.Reservations,
		Templates:    deps.Templates,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
	}
}

func (f *Finalizer) bookingBySession(ctx context.Context, idb bun.IDB, sessionID string) (*models.Booking, error) {
	b, err := f.DB.GetBookingBySession(ctx, idb, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &checkout.NotFoundError{Resource: "booking for session", ID: sessionID}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// HandleCompleted settles a booking the gateway reports as paid.
// amountCents is the amount the gateway actually charged; it is recorded on
// the booking. For mixed bookings the deferred voucher redemption happens
// here and only here.
func (f *Finalizer) HandleCompleted(ctx context.Context, sessionID string, amountCents int64) error {
	var (
		settled *models.Booking
		ev      *models.Event
	)

	err := f.DB.RunInTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		found, err := f.bookingBySession(ctx, idb, sessionID)
		if err != nil {
			return err
		}
		b, err := f.DB.GetBookingForUpdate(ctx, idb, found.ID)
		if err != nil {
			return err
		}

		if b.PaymentStatus == models.PaymentPaid {
			f.logger.LogWebhook("completed", sessionID, "booking already paid, duplicate delivery ignored")
			return nil
		}
		if b.PaymentStatus.Terminal() {
			// Completed arrived after the booking was already failed by an
			// expiry. The transition table forbids failed -> paid; keep the
			// terminal state and surface the anomaly in the logs.
			f.logger.Warn("WEBHOOK", fmt.Sprintf("completed event for booking %s in terminal state %s, ignored", b.ID, b.PaymentStatus))
			return nil
		}

		if amountCents > 0 {
			b.StripeCents = amountCents
		}
		b.SettledAt = f.now()
		if err := f.DB.TransitionPayment(ctx, idb, b, models.PaymentPaid); err != nil {
			return err
		}

		// Mixed payments drain the voucher only now, on confirmed
		// completion. An abandoned checkout never touched the balance.
		if b.PaymentMethod == models.MethodMixed && b.VoucherID != "" {
			if err := f.Vouchers.Redeem(ctx, idb, b.VoucherID, b.ID, b.VoucherCents); err != nil {
				return err
			}
		}

		if err := f.Customers.RecordPaidBooking(ctx, idb, b.CustomerID, b.TotalCents); err != nil {
			return err
		}
		if err := f.Inventory.MarkSoldOutIfExhausted(ctx, idb, b.EventID); err != nil {
			return err
		}

		settled = b
		ev, err = f.Inventory.GetEvent(ctx, idb, b.EventID)
		return err
	})
	if err != nil {
		return err
	}
	if settled == nil {
		return nil
	}

	f.logger.LogBooking("SETTLED", settled.ID, fmt.Sprintf("gateway confirmed %d cents (%s)", settled.StripeCents, settled.PaymentMethod))
	f.clearReservation(ctx, settled.ID)
	f.publishSettlement(f.cfg.Kafka.Topics.BookingSettled, settled)
	f.notify(ctx, settled, ev)
	return nil
}

// HandleExpired fails a booking whose gateway session timed out.
func (f *Finalizer) HandleExpired(ctx context.Context, sessionID string) error {
	var bookingID string
	err := f.DB.RunInTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		b, err := f.bookingBySession(ctx, idb, sessionID)
		if err != nil {
			return err
		}
		bookingID = b.ID
		return nil
	})
	if err != nil {
		return err
	}
	return f.ExpireBooking(ctx, bookingID)
}

// ExpireBooking fails a pending booking and compensates the inventory
// reservation. Shared by the expired webhook and the local reservation
// sweep; both callers tolerate the booking already being terminal.
func (f *Finalizer) ExpireBooking(ctx context.Context, bookingID string) error {
	var failed *models.Booking

	err := f.DB.RunInTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		b, err := f.DB.GetBookingForUpdate(ctx, idb, bookingID)
		if errors.Is(err, sql.ErrNoRows) {
			return &checkout.NotFoundError{Resource: "booking", ID: bookingID}
		}
		if err != nil {
			return err
		}

		if b.PaymentStatus.Terminal() {
			f.logger.LogWebhook("expired", bookingID, fmt.Sprintf("booking already %s, nothing to do", b.PaymentStatus))
			return nil
		}

		b.SettledAt = f.now()
		if err := f.DB.TransitionPayment(ctx, idb, b, models.PaymentFailed); err != nil {
			return err
		}
		if err := f.DB.CancelTickets(ctx, idb, b.ID); err != nil {
			return err
		}
		// Give the reserved tickets back. The voucher balance is untouched:
		// nothing was ever drained for a pending mixed booking.
		if err := f.Inventory.Release(ctx, idb, b.EventID, b.Quantity); err != nil {
			return err
		}

		failed = b
		return nil
	})
	if err != nil {
		return err
	}
	if failed == nil {
		return nil
	}

	f.logger.LogBooking("EXPIRED", failed.ID, fmt.Sprintf("%d tickets released back to event %s", failed.Quantity, failed.EventID))
	f.clearReservation(ctx, failed.ID)
	f.publishSettlement(f.cfg.Kafka.Topics.BookingFailed, failed)
	return nil
}

func (f *Finalizer) clearReservation(ctx context.Context, bookingID string) {
	if f.Reservations == nil {
		return
	}
	if err := f.Reservations.Clear(ctx, bookingID); err != nil {
		f.logger.Warn("REDIS", fmt.Sprintf("Failed to clear reservation marker for %s: %v", bookingID, err))
	}
}

func (f *Finalizer) publishSettlement(topic string, booking *models.Booking) {
	if f.Kafka == nil {
		return
	}
	event := models.SettlementEvent{
		BookingID:     booking.ID,
		BookingCode:   booking.BookingCode,
		EventID:       booking.EventID,
		PaymentStatus: booking.PaymentStatus,
		PaymentMethod: booking.PaymentMethod,
		TotalCents:    booking.TotalCents,
		VoucherCents:  booking.VoucherCents,
		StripeCents:   booking.StripeCents,
	}
	value, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("KAFKA", fmt.Sprintf("Failed to marshal settlement event for %s: %v", booking.ID, err))
		return
	}
	if err := f.Kafka.Publish(topic, booking.ID, value); err != nil {
		f.logger.Error("KAFKA", fmt.Sprintf("Failed to publish settlement event for %s: %v", booking.ID, err))
	}
}

// notify is fire-and-forget: failures are logged, never retried here, and
// never fail the webhook.
func (f *Finalizer) notify(ctx context.Context, booking *models.Booking, ev *models.Event) {
	if f.Notifier == nil || ev == nil {
		return
	}
	template := notification.ResolveTemplate(f.Templates, ev.ID, ev.Category)
	if err := f.Notifier.SendBookingConfirmation(ctx, booking.ID, template); err != nil {
		f.logger.Warn("NOTIFY", fmt.Sprintf("Booking confirmation for %s failed: %v", booking.ID, err))
	}
}
