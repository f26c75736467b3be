package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/gateway"
	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/notification"
	"ms-booking/internal/voucher"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/uptrace/bun"
)

type BookingStore interface {
	IDB() bun.IDB
	RunInTx(ctx context.Context, fn func(ctx context.Context, idb bun.IDB) error) error
	CreateBooking(ctx context.Context, idb bun.IDB, booking *models.Booking) error
	CreateTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error
	TransitionPayment(ctx context.Context, idb bun.IDB, booking *models.Booking, to models.PaymentStatus) error
	SetStripeSession(ctx context.Context, idb bun.IDB, bookingID, sessionID string) error
	GetBookingWithTickets(ctx context.Context, bookingID string) (*models.BookingWithTickets, error)
}

type InventoryStore interface {
	GetEvent(ctx context.Context, idb bun.IDB, eventID string) (*models.Event, error)
	Reserve(ctx context.Context, idb bun.IDB, eventID string, qty int) error
	MarkSoldOutIfExhausted(ctx context.Context, idb bun.IDB, eventID string) error
}

type VoucherLedger interface {
	Validate(ctx context.Context, idb bun.IDB, code, eventID string, requestedCents int64) (*voucher.ValidationResult, error)
	Redeem(ctx context.Context, idb bun.IDB, voucherID, bookingID string, amountCents int64) error
}

type CustomerStore interface {
	FindOrCreateByEmail(ctx context.Context, idb bun.IDB, info models.CustomerInfo) (*models.Customer, error)
	RecordPaidBooking(ctx context.Context, idb bun.IDB, customerID string, amountCents int64) error
}

type GatewayClient interface {
	CreateSession(ctx context.Context, p gateway.SessionParams) (*gateway.Session, error)
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type Notifier interface {
	SendBookingConfirmation(ctx context.Context, bookingID, template string) error
}

type ReservationTracker interface {
	Track(ctx context.Context, bookingID string, ttl time.Duration) error
	Clear(ctx context.Context, bookingID string) error
}

// Service is the checkout orchestrator: it composes the voucher ledger,
// inventory reservation and gateway session into one booking attempt.
type Service struct {
	DB           BookingStore
	Inventory    InventoryStore
	Vouchers     VoucherLedger
	Customers    CustomerStore
	Gateway      GatewayClient
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
	Gateway      GatewayClient
	Kafka        Publisher
	Notifier     Notifier
	Reservations ReservationTracker
	Templates    notification.TemplateSet
}

func NewService(deps Deps, cfg *config.Config, log *logger.Logger) *Service {
	return &Service{
		DB:           deps.DB,
		Inventory:    deps.Inventory,
		Vouchers:     deps.Vouchers,
		Customers:    deps.Customers,
		Gateway:      deps.Gateway,
		Kafka:        deps.Kafka,
		Notifier:     deps.Notifier,
		Reservations: deps.Reservations,
		Templates:    deps.Templates,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
	}
}

// mapVoucherError translates ledger sentinels into the settlement error
// taxonomy while keeping the distinct user-facing reason intact.
func mapVoucherError(err error, code string) error {
	switch {
	case errors.Is(err, voucher.ErrNotFound):
		return &NotFoundError{Resource: "voucher", ID: code}
	case errors.Is(err, voucher.ErrInactive),
		errors.Is(err, voucher.ErrExpired),
		errors.Is(err, voucher.ErrZeroBalance),
		errors.Is(err, voucher.ErrEventMismatch),
		errors.Is(err, voucher.ErrInsufficientBalance):
		return &ConflictError{Msg: err.Error()}
	default:
		return err
	}
}

func (s *Service) validateRequest(req models.CheckoutRequest) error {
	if req.EventID == "" {
		return &ValidationError{Msg: "event_id is required"}
	}
	if req.Customer.Email == "" {
		return &ValidationError{Msg: "customer email is required"}
	}
	if req.Quantity < s.cfg.Checkout.MinTicketsPerBooking {
		return &ValidationError{Msg: fmt.Sprintf("quantity must be at least %d", s.cfg.Checkout.MinTicketsPerBooking)}
	}
	if req.Quantity > s.cfg.Checkout.MaxTicketsPerBooking {
		return &ValidationError{Msg: fmt.Sprintf("quantity must not exceed %d", s.cfg.Checkout.MaxTicketsPerBooking)}
	}
	return nil
}

// PlaceBooking runs one booking attempt end to end. Everything from the
// inventory reservation to the settlement branch happens inside a single
// transaction: a gateway failure after the reservation rolls the decrement
// back, so no state is ever left half-applied.
func (s *Service) PlaceBooking(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	var (
		resp         *models.CheckoutResponse
		settled      *models.Booking
		settledEvent *models.Event
		pendingID    string
	)

	err := s.DB.RunInTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		ev, err := s.Inventory.GetEvent(ctx, idb, req.EventID)
		if errors.Is(err, inventory.ErrEventNotFound) {
			return &NotFoundError{Resource: "event", ID: req.EventID}
		}
		if err != nil {
			return err
		}
		if !ev.Bookable() {
			return &ValidationError{Msg: fmt.Sprintf("event %s is not open for bookings (status %s)", ev.ID, ev.Status)}
		}

		total := ev.PriceCents * int64(req.Quantity)

		// Voucher validation fails fast, before any write.
		var vchr *models.GiftVoucher
		split := Split(total, 0)
		if req.VoucherCode != "" {
			result, err := s.Vouchers.Validate(ctx, idb, req.VoucherCode, req.EventID, total)
			if err != nil {
				return mapVoucherError(err, req.VoucherCode)
			}
			vchr = result.Voucher
			split = Split(total, vchr.BalanceCents)
		}

		cust, err := s.Customers.FindOrCreateByEmail(ctx, idb, req.Customer)
		if err != nil {
			return err
		}

		// Reserve inventory before payment is confirmed. Overselling during
		// the gateway redirect is worse than a reservation parked on an
		// abandoned checkout; the expired webhook and the reservation sweep
		// give the tickets back.
		if err := s.Inventory.Reserve(ctx, idb, ev.ID, req.Quantity); err != nil {
			if errors.Is(err, inventory.ErrInsufficientStock) {
				return &ConflictError{Msg: fmt.Sprintf("only %d tickets left for event %s", ev.AvailableTickets, ev.ID)}
			}
			return err
		}

		booking := &models.Booking{
			ID:            uuid.NewString(),
			BookingCode:   GenerateBookingCode(),
			EventID:       ev.ID,
			CustomerID:    cust.ID,
			Quantity:      req.Quantity,
			TotalCents:    total,
			VoucherCents:  split.VoucherCents,
			StripeCents:   split.StripeCents,
			PaymentStatus: models.PaymentPending,
			PaymentMethod: split.Method,
			CreatedAt:     s.now(),
		}
		if vchr != nil {
			booking.VoucherID = vchr.ID
		}
		if err := s.DB.CreateBooking(ctx, idb, booking); err != nil {
			return err
		}

		tickets, err := s.issueTickets(booking)
		if err != nil {
			return err
		}
		if err := s.DB.CreateTickets(ctx, idb, tickets); err != nil {
			return err
		}

		if split.Method == models.MethodVoucher {
			// Fully covered: settle synchronously, no gateway involved.
			if err := s.Vouchers.Redeem(ctx, idb, vchr.ID, booking.ID, split.VoucherCents); err != nil {
				return mapVoucherError(err, req.VoucherCode)
			}
			booking.SettledAt = s.now()
			if err := s.DB.TransitionPayment(ctx, idb, booking, models.PaymentPaid); err != nil {
				return err
			}
			if err := s.Customers.RecordPaidBooking(ctx, idb, cust.ID, booking.TotalCents); err != nil {
				return err
			}
			if err := s.Inventory.MarkSoldOutIfExhausted(ctx, idb, ev.ID); err != nil {
				return err
			}

			settled = booking
			settledEvent = ev
			resp = &models.CheckoutResponse{
				BookingID:        booking.ID,
				BookingCode:      booking.BookingCode,
				PaymentCompleted: true,
				RedirectURL:      fmt.Sprintf("%s?code=%s", s.cfg.Checkout.ConfirmationURL, booking.BookingCode),
			}
			return nil
		}

		// Card or mixed: open a gateway session for the stripe part only.
		// No redemption is recorded yet — an abandoned checkout must never
		// drain the voucher.
		params := gateway.SessionParams{
			BookingID:   booking.ID,
			EventName:   ev.Name,
			Quantity:    int64(req.Quantity),
			AmountCents: split.StripeCents,
		}
		if vchr != nil {
			params.VoucherID = vchr.ID
			params.VoucherCents = split.VoucherCents
		}
		sess, err := s.Gateway.CreateSession(ctx, params)
		if err != nil {
			return &GatewayError{Op: "create session", Err: err}
		}
		if err := s.DB.SetStripeSession(ctx, idb, booking.ID, sess.ID); err != nil {
			return err
		}
		booking.StripeSessionID = sess.ID

		pendingID = booking.ID
		resp = &models.CheckoutResponse{
			BookingID:        booking.ID,
			BookingCode:      booking.BookingCode,
			PaymentCompleted: false,
			RedirectURL:      sess.RedirectURL,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled != nil {
		s.logger.LogBooking("SETTLED", settled.ID, fmt.Sprintf("voucher-only booking paid, %d cents", settled.TotalCents))
		s.publishSettlement(s.cfg.Kafka.Topics.BookingSettled, settled)
		s.notify(ctx, settled, settledEvent)
	}
	if pendingID != "" {
		s.logger.LogBooking("PENDING", pendingID, "awaiting gateway confirmation")
		if s.Reservations != nil {
			// The marker outlives the gateway session so a completed webhook
			// arriving at the last second always beats the local sweep.
			ttl := s.cfg.Stripe.SessionTTL + s.cfg.Checkout.ReservationGrace
			if err := s.Reservations.Track(ctx, pendingID, ttl); err != nil {
				s.logger.Warn("REDIS", fmt.Sprintf("Failed to track reservation for booking %s: %v", pendingID, err))
			}
		}
	}

	return resp, nil
}

// issueTickets creates one ticket per unit of quantity, each with a QR of its
// code baked in at issue time.
func (s *Service) issueTickets(booking *models.Booking) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, booking.Quantity)
	for i := 0; i < booking.Quantity; i++ {
		code := GenerateTicketCode()
		png, err := qrcode.Encode(code, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("qr generation failed: %w", err)
		}
		tickets = append(tickets, models.Ticket{
			ID:         uuid.NewString(),
			TicketCode: code,
			BookingID:  booking.ID,
			QRCode:     png,
			Status:     models.TicketValid,
			IssuedAt:   s.now(),
		})
	}
	return tickets, nil
}

// ValidateVoucher serves the UI's pre-checkout voucher check. Business
// failures come back as a structured invalid response, not an error.
func (s *Service) ValidateVoucher(ctx context.Context, req models.VoucherValidationRequest) (*models.VoucherValidationResponse, error) {
	if req.Code == "" {
		return nil, &ValidationError{Msg: "voucher code is required"}
	}

	result, err := s.Vouchers.Validate(ctx, s.DB.IDB(), req.Code, req.EventID, req.AmountCents)
	if err != nil {
		switch {
		case errors.Is(err, voucher.ErrNotFound),
			errors.Is(err, voucher.ErrInactive),
			errors.Is(err, voucher.ErrExpired),
			errors.Is(err, voucher.ErrZeroBalance),
			errors.Is(err, voucher.ErrEventMismatch):
			return &models.VoucherValidationResponse{Valid: false, Error: err.Error()}, nil
		default:
			return nil, err
		}
	}

	return &models.VoucherValidationResponse{
		Valid: true,
		Voucher: &models.VoucherSummary{
			Code:           result.Voucher.Code,
			BalanceCents:   result.Voucher.BalanceCents,
			MaxUsableCents: result.MaxUsableCents,
		},
		Warnings: result.Warnings,
	}, nil
}

// GetBooking serves the post-redirect status lookup. Only a missing row is a
// not-found; storage failures surface as-is so they are not mistaken for a
// deleted booking.
func (s *Service) GetBooking(ctx context.Context, bookingID string) (*models.BookingWithTickets, error) {
	b, err := s.DB.GetBookingWithTickets(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "booking", ID: bookingID}
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) publishSettlement(topic string, booking *models.Booking) {
	if s.Kafka == nil {
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
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to marshal settlement event for %s: %v", booking.ID, err))
		return
	}
	if err := s.Kafka.Publish(topic, booking.ID, value); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish settlement event for %s: %v", booking.ID, err))
	}
}

// notify is fire-and-forget: a confirmation failure is logged, never
// propagated into the settlement result.
func (s *Service) notify(ctx context.Context, booking *models.Booking, ev *models.Event) {
	if s.Notifier == nil {
		return
	}
	template := notification.ResolveTemplate(s.Templates, ev.ID, ev.Category)
	if err := s.Notifier.SendBookingConfirmation(ctx, booking.ID, template); err != nil {
		s.logger.Warn("NOTIFY", fmt.Sprintf("Booking confirmation for %s failed: %v", booking.ID, err))
	}
}
