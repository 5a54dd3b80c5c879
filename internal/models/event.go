package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventUpcoming  EventStatus = "UPCOMING"
	EventOngoing   EventStatus = "ONGOING"
	EventCompleted EventStatus = "COMPLETED"
)

type Event struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	EventCode    string          `json:"eventCode"`
	OrganizerID  string          `json:"organizerId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	StartDate    time.Time       `json:"startDate"`
	EndDate      time.Time       `json:"endDate"`
	MaxAttendees *int            `json:"maxAttendees,omitempty"`
}

// DeriveEventStatus computes the status from the schedule.
func DeriveEventStatus(start, end, now time.Time) EventStatus {
	switch {
	case end.Before(now):
		return EventCompleted
	case !start.After(now):
		return EventOngoing
	default:
		return EventUpcoming
	}
}

func (e *Event) Status(now time.Time) EventStatus {
	return DeriveEventStatus(e.StartDate, e.EndDate, now)
}

func (e *Event) IsFree() bool {
	return !e.Amount.IsPositive()
}

// IsFull reports whether activeCount registrations exhaust the capacity.
func (e *Event) IsFull(activeCount int) bool {
	if e.MaxAttendees == nil {
		return false
	}
	return activeCount >= *e.MaxAttendees
}
