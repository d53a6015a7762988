package model

import "time"

// Status represents booking status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses are the statuses that occupy a session.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Active reports whether the booking blocks its session.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Provider offers services against a weekly schedule.
type Provider struct {
	ID     string
	Name   string
	Active bool
}

// Service is a bookable offering of a provider.
type Service struct {
	ID         string
	ProviderID string
	Name       string
	Price      float64
}

// Booking is a customer's reservation of one session.
type Booking struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	ServiceID  string    `json:"service_id"`
	CustomerID string    `json:"customer_id"`
	Date       time.Time `json:"-"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Cost       float64   `json:"cost"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DateString returns the booking date as YYYY-MM-DD.
func (b *Booking) DateString() string {
	return FormatDate(b.Date)
}
