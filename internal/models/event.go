package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventActive    EventStatus = "active"
	EventSoldOut   EventStatus = "soldout"
	EventCancelled EventStatus = "cancelled"
)

// eventTransitions lists the allowed status moves. Soldout can go back to
// active when inventory is released by an expired checkout.
var eventTransitions = map[EventStatus][]EventStatus{
	EventDraft:     {EventActive, EventCancelled},
	EventActive:    {EventSoldOut, EventCancelled},
	EventSoldOut:   {EventActive, EventCancelled},
	EventCancelled: {},
}

func (s EventStatus) CanTransition(to EventStatus) bool {
	for _, next := range eventTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string      `bun:"id,pk" json:"id"`
	Name             string      `bun:"name,notnull" json:"name"`
	Category         string      `bun:"category" json:"category"`
	PriceCents       int64       `bun:"price_cents,notnull" json:"price_cents"`
	Capacity         int         `bun:"capacity,notnull" json:"capacity"`
	AvailableTickets int         `bun:"available_tickets,notnull" json:"available_tickets"`
	Status           EventStatus `bun:"status,notnull" json:"status"`
	StartDate        time.Time   `bun:"start_date,notnull" json:"start_date"`
	CreatedAt        time.Time   `bun:"created_at,notnull" json:"created_at"`
}

// Bookable reports whether checkout may reserve tickets for the event.
func (e *Event) Bookable() bool {
	return e.Status == EventActive
}
