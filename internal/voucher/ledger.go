package voucher

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

// Validation failures are distinct, user-facing reasons. The API layer maps
// each onto a specific message so the UI can prompt corrective action.
var (
	ErrNotFound      = errors.New("voucher code not found")
	ErrInactive      = errors.New("voucher is not active")
	ErrExpired       = errors.New("voucher has expired")
	ErrZeroBalance   = errors.New("voucher has no remaining balance")
	ErrEventMismatch = errors.New("voucher is not valid for this event")
	// ErrInsufficientBalance means a redemption lost a race to a concurrent
	// request that drained the balance first.
	ErrInsufficientBalance = errors.New("voucher balance is insufficient")
)

// Ledger owns voucher balances and the append-only redemption history. All
// mutating methods take a bun.IDB so the orchestrator can run them inside its
// transaction boundary.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// ValidationResult carries what the UI needs to render the voucher state.
type ValidationResult struct {
	Voucher        *models.GiftVoucher
	MaxUsableCents int64
	Warnings       []string
}

// Validate runs the ordered validation chain: code exists → active → not
// expired → balance > 0 → event scope matches. It never mutates anything.
func (l *Ledger) Validate(ctx context.Context, idb bun.IDB, code, eventID string, requestedCents int64) (*ValidationResult, error) {
	v, err := l.GetByCode(ctx, idb, code)
	if err != nil {
		return nil, err
	}

	if v.Status != models.VoucherActive {
		return nil, ErrInactive
	}
	if !v.ExpiresAt.After(l.now()) {
		return nil, ErrExpired
	}
	if v.BalanceCents <= 0 {
		return nil, ErrZeroBalance
	}
	if v.EventID != "" && v.EventID != eventID {
		return nil, ErrEventMismatch
	}

	result := &ValidationResult{Voucher: v}
	result.MaxUsableCents = v.BalanceCents
	if requestedCents < result.MaxUsableCents {
		result.MaxUsableCents = requestedCents
		result.Warnings = append(result.Warnings,
			"voucher balance exceeds this booking; the remainder stays available")
	}
	return result, nil
}

// GetByCode fetches a voucher by its unique code.
func (l *Ledger) GetByCode(ctx context.Context, idb bun.IDB, code string) (*models.GiftVoucher, error) {
	var v models.GiftVoucher
	err := idb.NewSelect().
		Model(&v).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByID fetches a voucher by primary key.
func (l *Ledger) GetByID(ctx context.Context, idb bun.IDB, id string) (*models.GiftVoucher, error) {
	var v models.GiftVoucher
	err := idb.NewSelect().
		Model(&v).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Redeem drains amountCents from the voucher and appends the ledger row, both
// against the caller's transaction. The balance decrement is conditional
// (balance >= amount), never read-modify-write, so two concurrent redemptions
// of the same voucher cannot over-redeem: the loser gets
// ErrInsufficientBalance.
func (l *Ledger) Redeem(ctx context.Context, idb bun.IDB, voucherID, bookingID string, amountCents int64) error {
	if amountCents <= 0 {
		return fmt.Errorf("redemption amount must be positive, got %d", amountCents)
	}

	res, err := idb.NewUpdate().
		Model((*models.GiftVoucher)(nil)).
		Set("balance_cents = balance_cents - ?", amountCents).
		Where("id = ?", voucherID).
		Where("status = ?", models.VoucherActive).
		Where("balance_cents >= ?", amountCents).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voucher decrement failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientBalance
	}

	redemption := &models.VoucherRedemption{
		ID:          uuid.NewString(),
		VoucherID:   voucherID,
		BookingID:   bookingID,
		AmountCents: amountCents,
		RedeemedAt:  l.now(),
	}
	if _, err := idb.NewInsert().Model(redemption).Exec(ctx); err != nil {
		return fmt.Errorf("redemption insert failed: %w", err)
	}

	// A fully drained voucher flips to redeemed. Conditional on balance so a
	// concurrent partial redemption cannot close a voucher that still has
	// value.
	_, err = idb.NewUpdate().
		Model((*models.GiftVoucher)(nil)).
		Set("status = ?", models.VoucherRedeemed).
		Where("id = ?", voucherID).
		Where("balance_cents = 0").
		Where("status = ?", models.VoucherActive).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voucher status update failed: %w", err)
	}
	return nil
}

// RedemptionsByVoucher returns the full ledger history for a voucher, oldest
// first.
func (l *Ledger) RedemptionsByVoucher(ctx context.Context, idb bun.IDB, voucherID string) ([]models.VoucherRedemption, error) {
	var rows []models.VoucherRedemption
	err := idb.NewSelect().
		Model(&rows).
		Where("voucher_id = ?", voucherID).
		Order("redeemed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
