package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCard    PaymentMethod = "card"
	MethodVoucher PaymentMethod = "voucher"
	MethodMixed   PaymentMethod = "mixed"
)

// paymentTransitions is the enumerated transition table for booking payment
// state. Anything not listed here (paid → pending, failed → paid, ...) is
// rejected by CanTransition, which every writer must consult.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentPaid:     {PaymentRefunded},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the booking has reached a final settlement state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID              string        `bun:"id,pk" json:"id"`
	BookingCode     string        `bun:"booking_code,unique,notnull" json:"booking_code"`
	EventID         string        `bun:"event_id,notnull" json:"event_id"`
	CustomerID      string        `bun:"customer_id,notnull" json:"customer_id"`
	Quantity        int           `bun:"quantity,notnull" json:"quantity"`
	TotalCents      int64         `bun:"total_cents,notnull" json:"total_cents"`
	VoucherCents    int64         `bun:"voucher_cents,notnull" json:"voucher_cents"`
	StripeCents     int64         `bun:"stripe_cents,notnull" json:"stripe_cents"`
	PaymentStatus   PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentMethod   PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`
	StripeSessionID string        `bun:"stripe_session_id,nullzero" json:"stripe_session_id,omitempty"`
	VoucherID       string        `bun:"voucher_id,nullzero" json:"voucher_id,omitempty"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
	SettledAt       time.Time     `bun:"settled_at,nullzero" json:"settled_at,omitempty"`
}

type BookingWithTickets struct {
	Booking
	Tickets []Ticket `json:"tickets"`
}
