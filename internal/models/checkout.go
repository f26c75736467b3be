package models

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CheckoutRequest struct {
	EventID     string       `json:"event_id"`
	Customer    CustomerInfo `json:"customer"`
	Quantity    int          `json:"quantity"`
	VoucherCode string       `json:"voucher_code,omitempty"`
}

type CheckoutResponse struct {
	BookingID        string `json:"booking_id"`
	BookingCode      string `json:"booking_code"`
	PaymentCompleted bool   `json:"payment_completed"`
	// RedirectURL points at the confirmation page for voucher-only
	// settlements and at the Stripe-hosted checkout otherwise.
	RedirectURL string `json:"redirect_url"`
}

type VoucherValidationRequest struct {
	Code        string `json:"code"`
	EventID     string `json:"event_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

type VoucherSummary struct {
	Code           string `json:"code"`
	BalanceCents   int64  `json:"balance_cents"`
	MaxUsableCents int64  `json:"max_usable_cents"`
}

type VoucherValidationResponse struct {
	Valid    bool            `json:"valid"`
	Voucher  *VoucherSummary `json:"voucher,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// SettlementEvent is the Kafka payload published when a booking reaches a
// terminal state.
type SettlementEvent struct {
	BookingID     string        `json:"booking_id"`
	BookingCode   string        `json:"booking_code"`
	EventID       string        `json:"event_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TotalCents    int64         `json:"total_cents"`
	VoucherCents  int64         `json:"voucher_cents"`
	StripeCents   int64         `json:"stripe_cents"`
}
