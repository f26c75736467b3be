package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrClientInitFailed = errors.New("failed to initialize Stripe client")

// Metadata keys carried on the checkout session so the webhook can recover
// the settlement context without trusting anything else in the payload.
const (
	MetaBookingID    = "booking_id"
	MetaVoucherID    = "voucher_id"
	MetaVoucherCents = "voucher_cents"
)

// SessionParams describes the card-charged remainder of a booking. The
// amount is only the stripe part of the split; the voucher part never touches
// the gateway.
type SessionParams struct {
	BookingID    string
	EventName    string
	Quantity     int64
	AmountCents  int64
	VoucherID    string
	VoucherCents int64
}

// Session is the opaque handle the orchestrator persists and redirects to.
type Session struct {
	ID          string
	RedirectURL string
}

// Client wraps the Stripe Checkout API and webhook verification.
type Client struct {
	api *client.API
	cfg config.StripeConfig
	log *logger.Logger
}

func NewClient(cfg config.StripeConfig, log *logger.Logger) (*Client, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &Client{api: sc, cfg: cfg, log: log}, nil
}

// CreateSession opens a time-bounded Stripe Checkout session for the card
// remainder. Session expiry is enforced by Stripe and reported back through
// the checkout.session.expired webhook.
func (c *Client) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	expiresAt := time.Now().Add(c.cfg.SessionTTL)

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.cfg.Currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Tickets: %s (x%d)", p.EventName, p.Quantity)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
		ExpiresAt:  stripe.Int64(expiresAt.Unix()),
	}
	params.Context = ctx
	params.AddMetadata(MetaBookingID, p.BookingID)
	if p.VoucherID != "" {
		params.AddMetadata(MetaVoucherID, p.VoucherID)
		params.AddMetadata(MetaVoucherCents, strconv.FormatInt(p.VoucherCents, 10))
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		c.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for booking %s: %v", p.BookingID, err))
		return nil, err
	}

	c.log.Info("STRIPE", fmt.Sprintf("Created checkout session %s for booking %s (%d cents)", sess.ID, p.BookingID, p.AmountCents))
	return &Session{ID: sess.ID, RedirectURL: sess.URL}, nil
}

// VerifyEvent checks the webhook signature against the shared secret before
// anything else looks at the payload. API version mismatches are tolerated;
// signature failures are not.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, opts)
}
