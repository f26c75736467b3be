package voucher

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	if err := bunDB.ResetModel(ctx, (*models.GiftVoucher)(nil)); err != nil {
		t.Fatalf("Failed to create gift_vouchers table: %v", err)
	}
	if err := bunDB.ResetModel(ctx, (*models.VoucherRedemption)(nil)); err != nil {
		t.Fatalf("Failed to create voucher_redemptions table: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func insertVoucher(t *testing.T, db *bun.DB, v *models.GiftVoucher) {
	t.Helper()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if _, err := db.NewInsert().Model(v).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to insert voucher: %v", err)
	}
}

func TestValidateChain(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v-ok", Code: "GIFT-OK", OriginalAmountCents: 5000, BalanceCents: 5000,
		Status: models.VoucherActive, ExpiresAt: future,
	})
	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v-cancelled", Code: "GIFT-CANCELLED", OriginalAmountCents: 5000, BalanceCents: 5000,
		Status: models.VoucherCancelled, ExpiresAt: future,
	})
	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v-expired", Code: "GIFT-EXPIRED", OriginalAmountCents: 5000, BalanceCents: 5000,
		Status: models.VoucherActive, ExpiresAt: past,
	})
	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v-drained", Code: "GIFT-DRAINED", OriginalAmountCents: 5000, BalanceCents: 0,
		Status: models.VoucherActive, ExpiresAt: future,
	})
	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v-scoped", Code: "GIFT-SCOPED", OriginalAmountCents: 5000, BalanceCents: 5000,
		Status: models.VoucherActive, ExpiresAt: future, EventID: "event-other",
	})

	tests := []struct {
		name    string
		code    string
		eventID string
		wantErr error
	}{
		{"valid voucher passes", "GIFT-OK", "event001", nil},
		{"unknown code", "GIFT-NOPE", "event001", ErrNotFound},
		{"cancelled voucher", "GIFT-CANCELLED", "event001", ErrInactive},
		{"expired voucher", "GIFT-EXPIRED", "event001", ErrExpired},
		{"drained voucher", "GIFT-DRAINED", "event001", ErrZeroBalance},
		{"event scope mismatch", "GIFT-SCOPED", "event001", ErrEventMismatch},
		{"event scope match", "GIFT-SCOPED", "event-other", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Validate(ctx, db, tt.code, tt.eventID, 10000)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateCapsUsableAmount(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v1", Code: "GIFT-BIG", OriginalAmountCents: 10000, BalanceCents: 10000,
		Status: models.VoucherActive, ExpiresAt: time.Now().Add(time.Hour),
	})

	// Booking total below the balance: usable amount is capped and the caller
	// is warned about the remainder.
	result, err := ledger.Validate(ctx, db, "GIFT-BIG", "event001", 3000)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.MaxUsableCents != 3000 {
		t.Errorf("Expected max usable 3000, got %d", result.MaxUsableCents)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Expected a remainder warning, got %v", result.Warnings)
	}

	// Booking total above the balance: whole balance usable, no warning.
	result, err = ledger.Validate(ctx, db, "GIFT-BIG", "event001", 20000)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.MaxUsableCents != 10000 {
		t.Errorf("Expected max usable 10000, got %d", result.MaxUsableCents)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
}

func TestRedeemPartial(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v1", Code: "GIFT-A", OriginalAmountCents: 5000, BalanceCents: 5000,
		Status: models.VoucherActive, ExpiresAt: time.Now().Add(time.Hour),
	})

	if err := ledger.Redeem(ctx, db, "v1", "booking1", 2000); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	v, err := ledger.GetByID(ctx, db, "v1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if v.BalanceCents != 3000 {
		t.Errorf("Expected balance 3000, got %d", v.BalanceCents)
	}
	if v.Status != models.VoucherActive {
		t.Errorf("Partially drained voucher must stay active, got %s", v.Status)
	}

	rows, err := ledger.RedemptionsByVoucher(ctx, db, "v1")
	if err != nil {
		t.Fatalf("RedemptionsByVoucher failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 redemption row, got %d", len(rows))
	}
	if rows[0].AmountCents != 2000 || rows[0].BookingID != "booking1" {
		t.Errorf("Unexpected redemption row: %+v", rows[0])
	}
}

func TestRedeemDrainsAndClosesVoucher(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v1", Code: "GIFT-A", OriginalAmountCents: 5000, BalanceCents: 5000,
		Status: models.VoucherActive, ExpiresAt: time.Now().Add(time.Hour),
	})

	if err := ledger.Redeem(ctx, db, "v1", "booking1", 5000); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	v, err := ledger.GetByID(ctx, db, "v1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if v.BalanceCents != 0 {
		t.Errorf("Expected balance 0, got %d", v.BalanceCents)
	}
	if v.Status != models.VoucherRedeemed {
		t.Errorf("Fully drained voucher must flip to redeemed, got %s", v.Status)
	}
}

func TestRedeemOverBalanceFails(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v1", Code: "GIFT-A", OriginalAmountCents: 5000, BalanceCents: 1000,
		Status: models.VoucherActive, ExpiresAt: time.Now().Add(time.Hour),
	})

	err := ledger.Redeem(ctx, db, "v1", "booking1", 1500)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	// The failed attempt must not have touched the balance or the history.
	v, err := ledger.GetByID(ctx, db, "v1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if v.BalanceCents != 1000 {
		t.Errorf("Balance must be unchanged after failed redemption, got %d", v.BalanceCents)
	}
	rows, err := ledger.RedemptionsByVoucher(ctx, db, "v1")
	if err != nil {
		t.Fatalf("RedemptionsByVoucher failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no redemption rows, got %d", len(rows))
	}
}

func TestLedgerBalanceInvariant(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()
	ctx := context.Background()

	insertVoucher(t, db, &models.GiftVoucher{
		ID: "v1", Code: "GIFT-A", OriginalAmountCents: 10000, BalanceCents: 10000,
		Status: models.VoucherActive, ExpiresAt: time.Now().Add(time.Hour),
	})

	amounts := []int64{1500, 2500, 4000}
	for i, amount := range amounts {
		if err := ledger.Redeem(ctx, db, "v1", "booking", amount); err != nil {
			t.Fatalf("Redeem %d failed: %v", i, err)
		}
	}

	v, err := ledger.GetByID(ctx, db, "v1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	rows, err := ledger.RedemptionsByVoucher(ctx, db, "v1")
	if err != nil {
		t.Fatalf("RedemptionsByVoucher failed: %v", err)
	}

	var redeemed int64
	for _, r := range rows {
		redeemed += r.AmountCents
	}

	// Sum of ledger rows plus remaining balance always reconstructs the
	// original amount.
	if redeemed+v.BalanceCents != v.OriginalAmountCents {
		t.Errorf("Ledger invariant violated: redeemed %d + balance %d != original %d",
			redeemed, v.BalanceCents, v.OriginalAmountCents)
	}
}

func TestRedeemRejectsNonPositiveAmount(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()

	if err := ledger.Redeem(context.Background(), db, "v1", "b1", 0); err == nil {
		t.Error("Expected error for zero redemption amount")
	}
	if err := ledger.Redeem(context.Background(), db, "v1", "b1", -100); err == nil {
		t.Error("Expected error for negative redemption amount")
	}
}
