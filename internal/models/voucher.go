package models

import (
	"time"

	"github.com/uptrace/bun"
)

type VoucherStatus string

const (
	VoucherActive    VoucherStatus = "active"
	VoucherRedeemed  VoucherStatus = "redeemed"
	VoucherExpired   VoucherStatus = "expired"
	VoucherCancelled VoucherStatus = "cancelled"
)

type GiftVoucher struct {
	bun.BaseModel `bun:"table:gift_vouchers"`

	ID                  string        `bun:"id,pk" json:"id"`
	Code                string        `bun:"code,unique,notnull" json:"code"`
	OriginalAmountCents int64         `bun:"original_amount_cents,notnull" json:"original_amount_cents"`
	BalanceCents        int64         `bun:"balance_cents,notnull" json:"balance_cents"`
	Status              VoucherStatus `bun:"status,notnull" json:"status"`
	ExpiresAt           time.Time     `bun:"expires_at,notnull" json:"expires_at"`
	EventID             string        `bun:"event_id,nullzero" json:"event_id,omitempty"` // empty = redeemable against any event
	CreatedAt           time.Time     `bun:"created_at,notnull" json:"created_at"`
}

// VoucherRedemption is the append-only ledger row. Rows are never updated or
// deleted: sum(amount_cents) + voucher balance must always equal the original
// amount.
type VoucherRedemption struct {
	bun.BaseModel `bun:"table:voucher_redemptions"`

	ID          string    `bun:"id,pk" json:"id"`
	VoucherID   string    `bun:"voucher_id,notnull" json:"voucher_id"`
	BookingID   string    `bun:"booking_id,notnull" json:"booking_id"`
	AmountCents int64     `bun:"amount_cents,notnull" json:"amount_cents"`
	RedeemedAt  time.Time `bun:"redeemed_at,notnull" json:"redeemed_at"`
}
