// Package store declares the persistence contracts of the scheduling engine.
package store

import (
	"context"
	"time"

	"sessionbook/internal/model"
)

// ScheduleStore reads and replaces weekly schedules.
type ScheduleStore interface {
	// GetSchedule returns nil, nil when the provider has no schedule.
	GetSchedule(ctx context.Context, providerID string) (*model.ScheduleDefinition, error)
	// ReplaceSchedule deletes the provider's schedule and inserts def in one transaction.
	ReplaceSchedule(ctx context.Context, def *model.ScheduleDefinition) error
}

// CatalogStore resolves providers and their services.
type CatalogStore interface {
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	ListServiceIDs(ctx context.Context, providerID string) ([]string, error)
}

// BookingFilter selects bookings. Zero fields do not filter.
type BookingFilter struct {
	ServiceIDs []string
	ProviderID string
	CustomerID string
	// From and To bound the booking date inclusively.
	From     time.Time
	To       time.Time
	Statuses []model.Status
}

// BookingStore reads and writes bookings.
//
// InsertBooking and UpdateBookingTime are conflict-free commits: within a
// single transaction they check the provider's pending and confirmed bookings
// on the target date for overlap (ignoring the moved booking) and fail with
// model.ErrConflict without writing anything.
type BookingStore interface {
	FindBookings(ctx context.Context, filter BookingFilter) ([]model.Booking, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	// UpdateBookingStatus moves a booking to status only if its current status is in from.
	UpdateBookingStatus(ctx context.Context, id string, from []model.Status, status model.Status) error
	UpdateBookingTime(ctx context.Context, id string, date time.Time, start, end string) error
}
