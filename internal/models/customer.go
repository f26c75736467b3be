package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Customer carries rollup statistics. TotalBookings and TotalSpentCents are
// bumped only when a booking reaches paid.
type Customer struct {
	bun.BaseModel `bun:"table:customers"`

	ID              string    `bun:"id,pk" json:"id"`
	Email           string    `bun:"email,unique,notnull" json:"email"`
	Name            string    `bun:"name,notnull" json:"name"`
	TotalBookings   int       `bun:"total_bookings,notnull" json:"total_bookings"`
	TotalSpentCents int64     `bun:"total_spent_cents,notnull" json:"total_spent_cents"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}
