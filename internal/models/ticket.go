package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketCancelled TicketStatus = "cancelled"
	TicketUsed      TicketStatus = "used"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID         string       `bun:"id,pk" json:"id"`
	TicketCode string       `bun:"ticket_code,unique,notnull" json:"ticket_code"`
	BookingID  string       `bun:"booking_id,notnull" json:"booking_id"`
	QRCode     []byte       `bun:"qr_code" json:"qr_code,omitempty"`
	Status     TicketStatus `bun:"status,notnull" json:"status"`
	IssuedAt   time.Time    `bun:"issued_at,notnull" json:"issued_at"`
}
