// Package calendar classifies each day of a month by occupancy.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
	"sessionbook/internal/schedule"
	"sessionbook/internal/slots"
	"sessionbook/internal/store"
)

// DayState is the occupancy class of a day.
type DayState string

const (
	StateUnavailable     DayState = "unavailable"
	StateAvailable       DayState = "available"
	StatePartiallyBooked DayState = "partially_booked"
	StateMostlyBooked    DayState = "mostly_booked"
	StateFullyBooked     DayState = "fully_booked"
)

const mostlyBookedThreshold = 60.0

// Day is the occupancy summary of one date.
type Day struct {
	Date                time.Time `json:"-"`
	Status              DayState  `json:"status"`
	AvailablePercentage float64   `json:"available_percentage"`
	TotalSessions       int       `json:"total_sessions"`
	BookedSessions      int       `json:"booked_sessions"`
}

// Options tune aggregation.
type Options struct {
	// ClampAvailable floors available_percentage at 0 when bookings exceed sessions.
	ClampAvailable bool
}

// Service aggregates month calendars.
type Service struct {
	schedules store.ScheduleStore
	catalog   store.CatalogStore
	bookings  store.BookingStore
	opts      Options
	logger    zerolog.Logger
}

// NewService creates a calendar service.
func NewService(schedules store.ScheduleStore, catalog store.CatalogStore, bookings store.BookingStore, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		schedules: schedules,
		catalog:   catalog,
		bookings:  bookings,
		opts:      opts,
		logger:    logger.With().Str("component", "calendar").Logger(),
	}
}

// Month returns one Day per date of the month.
func (s *Service) Month(ctx context.Context, providerID string, year int, month time.Month) ([]Day, error) {
	metrics.IncAvailabilityQuery("calendar")

	if month < time.January || month > time.December {
		return nil, model.Validationf("month must be 1..12, got %d", month)
	}
	if year < 1 || year > 9999 {
		return nil, model.Validationf("invalid year %d", year)
	}
	if _, err := s.catalog.GetProvider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}

	def, err := s.schedules.GetSchedule(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	booked := map[string]int{}
	if def != nil {
		serviceIDs, err := s.catalog.ListServiceIDs(ctx, providerID)
		if err != nil {
			return nil, fmt.Errorf("list services: %w", err)
		}
		if len(serviceIDs) > 0 {
			bookings, err := s.bookings.FindBookings(ctx, store.BookingFilter{
				ServiceIDs: serviceIDs,
				From:       first,
				To:         last,
				Statuses:   model.ActiveStatuses,
			})
			if err != nil {
				return nil, fmt.Errorf("find bookings: %w", err)
			}
			for i := range bookings {
				booked[bookings[i].DateString()]++
			}
		}
	}

	days := make([]Day, 0, last.Day())
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		total := 0
		if def != nil {
			total, err = slots.CountDay(schedule.Windows(def, d))
			if err != nil {
				return nil, fmt.Errorf("count sessions for %s: %w", model.FormatDate(d), err)
			}
		}
		days = append(days, s.classify(d, total, booked[model.FormatDate(d)]))
	}

	return days, nil
}

func (s *Service) classify(date time.Time, total, booked int) Day {
	day := Day{Date: date, TotalSessions: total, BookedSessions: booked}
	if total == 0 {
		day.Status = StateUnavailable
		return day
	}

	occupancy := float64(booked) / float64(total) * 100
	day.AvailablePercentage = 100 - occupancy
	if s.opts.ClampAvailable && day.AvailablePercentage < 0 {
		day.AvailablePercentage = 0
	}

	switch {
	case occupancy >= 100:
		day.Status = StateFullyBooked
	case occupancy >= mostlyBookedThreshold:
		day.Status = StateMostlyBooked
	case occupancy > 0:
		day.Status = StatePartiallyBooked
	default:
		day.Status = StateAvailable
	}
	return day
}
