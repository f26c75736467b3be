package customers

import (
	"context"
	"database/sql"
	"testing"

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
	if err := bunDB.ResetModel(context.Background(), (*models.Customer)(nil)); err != nil {
		t.Fatalf("Failed to create customers table: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func TestFindOrCreateByEmail(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore()
	ctx := context.Background()

	info := models.CustomerInfo{Email: "alice@example.com", Name: "Alice"}

	created, err := store.FindOrCreateByEmail(ctx, db, info)
	if err != nil {
		t.Fatalf("FindOrCreateByEmail failed: %v", err)
	}
	if created.ID == "" {
		t.Error("New customer should get an id")
	}
	if created.TotalBookings != 0 || created.TotalSpentCents != 0 {
		t.Error("New customer rollups should start at zero")
	}

	// Same email resolves to the same row, not a duplicate.
	found, err := store.FindOrCreateByEmail(ctx, db, info)
	if err != nil {
		t.Fatalf("Second FindOrCreateByEmail failed: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("Expected existing customer %s, got %s", created.ID, found.ID)
	}
}

func TestRecordPaidBooking(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore()
	ctx := context.Background()

	c, err := store.FindOrCreateByEmail(ctx, db, models.CustomerInfo{Email: "bob@example.com", Name: "Bob"})
	if err != nil {
		t.Fatalf("FindOrCreateByEmail failed: %v", err)
	}

	if err := store.RecordPaidBooking(ctx, db, c.ID, 4500); err != nil {
		t.Fatalf("RecordPaidBooking failed: %v", err)
	}
	if err := store.RecordPaidBooking(ctx, db, c.ID, 2000); err != nil {
		t.Fatalf("RecordPaidBooking failed: %v", err)
	}

	got, err := store.FindOrCreateByEmail(ctx, db, models.CustomerInfo{Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.TotalBookings != 2 {
		t.Errorf("Expected 2 bookings, got %d", got.TotalBookings)
	}
	if got.TotalSpentCents != 6500 {
		t.Errorf("Expected 6500 cents spent, got %d", got.TotalSpentCents)
	}
}
