// Package report renders month calendars as spreadsheets.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"sessionbook/internal/calendar"
	"sessionbook/internal/model"
	"sessionbook/internal/store"
)

var stateFill = map[calendar.DayState]string{
	calendar.StateUnavailable:     "#E0E0E0",
	calendar.StateAvailable:       "#C8E6C9",
	calendar.StatePartiallyBooked: "#FFF9C4",
	calendar.StateMostlyBooked:    "#FFE0B2",
	calendar.StateFullyBooked:     "#FFCDD2",
}

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// MonthAggregator computes a provider's month calendar.
type MonthAggregator interface {
	Month(ctx context.Context, providerID string, year int, month time.Month) ([]calendar.Day, error)
}

// Exporter writes a provider's month as an .xlsx workbook with a calendar
// sheet and a bookings sheet.
type Exporter struct {
	calendar MonthAggregator
	catalog  store.CatalogStore
	bookings store.BookingStore
	logger   zerolog.Logger
}

func NewExporter(cal MonthAggregator, catalog store.CatalogStore, bookings store.BookingStore, logger zerolog.Logger) *Exporter {
	return &Exporter{
		calendar: cal,
		catalog:  catalog,
		bookings: bookings,
		logger:   logger.With().Str("component", "report").Logger(),
	}
}

// Filename is the suggested file name of a month export.
func Filename(providerID string, year int, month time.Month) string {
	return fmt.Sprintf("calendar_%s_%04d_%02d.xlsx", providerID, year, int(month))
}

// WriteMonth renders the month and writes the workbook to w.
func (e *Exporter) WriteMonth(ctx context.Context, w io.Writer, providerID string, year int, month time.Month) error {
	days, err := e.calendar.Month(ctx, providerID, year, month)
	if err != nil {
		return err
	}

	serviceIDs, err := e.catalog.ListServiceIDs(ctx, providerID)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	var bookings []model.Booking
	if len(serviceIDs) > 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		bookings, err = e.bookings.FindBookings(ctx, store.BookingFilter{
			ServiceIDs: serviceIDs,
			From:       first,
			To:         first.AddDate(0, 1, -1),
		})
		if err != nil {
			return fmt.Errorf("find bookings: %w", err)
		}
	}

	sw := newSheetWriter()
	defer sw.Close()

	if err := writeCalendarSheet(sw, days); err != nil {
		return fmt.Errorf("calendar sheet: %w", err)
	}
	if err := e.writeBookingsSheet(ctx, sw, bookings); err != nil {
		return fmt.Errorf("bookings sheet: %w", err)
	}

	if err := sw.Save(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	e.logger.Info().
		Str("provider_id", providerID).
		Int("year", year).
		Int("month", int(month)).
		Int("bookings", len(bookings)).
		Msg("calendar exported")
	return nil
}

func writeCalendarSheet(sw *sheetWriter, days []calendar.Day) error {
	if err := sw.AddSheet("Calendar"); err != nil {
		return err
	}
	if err := sw.WriteHeader([]string{"Date", "Weekday", "Status", "Available %", "Sessions", "Booked"}); err != nil {
		return err
	}
	for _, d := range days {
		row := []any{
			model.FormatDate(d.Date),
			weekdayNames[model.Weekday(d.Date)],
			string(d.Status),
			d.AvailablePercentage,
			d.TotalSessions,
			d.BookedSessions,
		}
		if err := sw.WriteRow(row, stateFill[d.Status]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeBookingsSheet(ctx context.Context, sw *sheetWriter, bookings []model.Booking) error {
	if err := sw.AddSheet("Bookings"); err != nil {
		return err
	}
	if err := sw.WriteHeader([]string{"Date", "Start", "End", "Service", "Customer", "Status", "Cost", "Booking ID"}); err != nil {
		return err
	}

	names := map[string]string{}
	for _, b := range bookings {
		name, ok := names[b.ServiceID]
		if !ok {
			name = b.ServiceID
			if svc, err := e.catalog.GetService(ctx, b.ServiceID); err == nil {
				name = svc.Name
			}
			names[b.ServiceID] = name
		}
		row := []any{b.DateString(), b.StartTime, b.EndTime, name, b.CustomerID, string(b.Status), b.Cost, b.ID}
		if err := sw.WriteRow(row, ""); err != nil {
			return err
		}
	}
	return nil
}
