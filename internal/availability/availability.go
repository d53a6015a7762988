// Package availability answers which sessions of a provider are still bookable.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sessionbook/internal/conflict"
	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
	"sessionbook/internal/schedule"
	"sessionbook/internal/slots"
	"sessionbook/internal/store"
)

// MaxRangeDays bounds reschedule range queries.
const MaxRangeDays = 31

// SlotSplit is a date's generated sessions partitioned by occupancy.
type SlotSplit struct {
	Date      time.Time       `json:"-"`
	Available []model.Session `json:"available_slots"`
	Booked    []model.Session `json:"booked_slots"`
}

// Service composes schedule resolution, session generation and conflict filtering.
type Service struct {
	schedules store.ScheduleStore
	catalog   store.CatalogStore
	bookings  store.BookingStore
	logger    zerolog.Logger
}

// NewService creates an availability service.
func NewService(schedules store.ScheduleStore, catalog store.CatalogStore, bookings store.BookingStore, logger zerolog.Logger) *Service {
	return &Service{
		schedules: schedules,
		catalog:   catalog,
		bookings:  bookings,
		logger:    logger.With().Str("component", "availability").Logger(),
	}
}

// OpenSessions returns the sessions of date that no pending or confirmed
// booking of the provider overlaps, in window declaration order. A provider
// without a schedule has no sessions.
func (s *Service) OpenSessions(ctx context.Context, providerID string, date time.Time) ([]model.Session, error) {
	metrics.IncAvailabilityQuery("open_sessions")

	split, err := s.split(ctx, providerID, date, "")
	if err != nil {
		return nil, err
	}
	return split.Available, nil
}

// RescheduleSlots returns the sessions of date for moving bookingID. The
// booking itself never blocks a session.
func (s *Service) RescheduleSlots(ctx context.Context, bookingID, providerID string, date time.Time) (*SlotSplit, error) {
	metrics.IncAvailabilityQuery("reschedule_slots")

	if _, err := s.ownedBooking(ctx, bookingID, providerID); err != nil {
		return nil, err
	}
	return s.split(ctx, providerID, date, bookingID)
}

// RescheduleRange is RescheduleSlots for every date in [from, to].
func (s *Service) RescheduleRange(ctx context.Context, bookingID, providerID string, from, to time.Time) ([]SlotSplit, error) {
	metrics.IncAvailabilityQuery("reschedule_range")

	if to.Before(from) {
		return nil, model.Validationf("start_date must be before or equal to end_date")
	}
	if int(to.Sub(from).Hours()/24) >= MaxRangeDays {
		return nil, model.Validationf("date range exceeds maximum of %d days", MaxRangeDays)
	}
	if _, err := s.ownedBooking(ctx, bookingID, providerID); err != nil {
		return nil, err
	}

	var out []SlotSplit
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		split, err := s.split(ctx, providerID, d, bookingID)
		if err != nil {
			return nil, err
		}
		out = append(out, *split)
	}
	return out, nil
}

func (s *Service) split(ctx context.Context, providerID string, date time.Time, excludeID string) (*SlotSplit, error) {
	if _, err := s.catalog.GetProvider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}

	out := &SlotSplit{Date: date, Available: []model.Session{}, Booked: []model.Session{}}

	def, err := s.schedules.GetSchedule(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	windows := schedule.Windows(def, date)
	if len(windows) == 0 {
		return out, nil
	}

	sessions, err := slots.GenerateDay(windows)
	if err != nil {
		return nil, fmt.Errorf("generate sessions: %w", err)
	}

	serviceIDs, err := s.catalog.ListServiceIDs(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	var bookings []model.Booking
	if len(serviceIDs) > 0 {
		bookings, err = s.bookings.FindBookings(ctx, store.BookingFilter{
			ServiceIDs: serviceIDs,
			From:       date,
			To:         date,
			Statuses:   model.ActiveStatuses,
		})
		if err != nil {
			return nil, fmt.Errorf("find bookings: %w", err)
		}
	}

	open, taken := conflict.Split(sessions, bookings, excludeID)
	out.Available = open
	if taken != nil {
		out.Booked = taken
	}

	s.logger.Debug().
		Str("provider_id", providerID).
		Str("date", model.FormatDate(date)).
		Int("sessions", len(sessions)).
		Int("open", len(open)).
		Msg("availability resolved")
	return out, nil
}

func (s *Service) ownedBooking(ctx context.Context, bookingID, providerID string) (*model.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	svc, err := s.catalog.GetService(ctx, b.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc.ProviderID != providerID {
		return nil, model.Forbiddenf("booking %s does not belong to provider %s", bookingID, providerID)
	}
	return b, nil
}
