package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sessionbook/internal/calendar"
	"sessionbook/internal/model"
	"sessionbook/internal/store/memstore"
)

func TestWriteMonth(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	st.AddProvider(model.Provider{ID: "p1", Name: "Dr. Reed", Active: true})
	st.AddService(model.Service{ID: "s1", ProviderID: "p1", Name: "Consultation", Price: 50})
	require.NoError(t, st.ReplaceSchedule(ctx, &model.ScheduleDefinition{
		ProviderID: "p1",
		Days: []model.DayAvailability{
			{DayOfWeek: 0, Windows: []model.TimeWindow{{StartTime: "09:00", EndTime: "11:00", SessionDuration: 30}}},
		},
	}))
	st.PutBooking(model.Booking{
		ID: "b1", ServiceID: "s1", ProviderID: "p1", CustomerID: "c1",
		Date:      time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00", EndTime: "09:30", Cost: 50, Status: model.StatusConfirmed,
	})

	cal := calendar.NewService(st, st, st, calendar.Options{ClampAvailable: true}, zerolog.Nop())
	exp := NewExporter(cal, st, st, zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, exp.WriteMonth(ctx, &buf, "p1", 2025, time.March))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Calendar", "Bookings"}, f.GetSheetList())

	rows, err := f.GetRows("Calendar")
	require.NoError(t, err)
	require.Len(t, rows, 32)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, []string{"2025-03-03", "Monday", "partially_booked", "75", "4", "1"}, rows[3])
	assert.Equal(t, "unavailable", rows[2][2])

	bookings, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "Consultation", bookings[1][3])
	assert.Equal(t, "b1", bookings[1][7])

	assert.Equal(t, "calendar_p1_2025_03.xlsx", Filename("p1", 2025, time.March))
}

func TestWriteMonthUnknownProvider(t *testing.T) {
	st := memstore.New()
	cal := calendar.NewService(st, st, st, calendar.Options{}, zerolog.Nop())
	exp := NewExporter(cal, st, st, zerolog.Nop())

	var buf bytes.Buffer
	err := exp.WriteMonth(context.Background(), &buf, "ghost", 2025, time.March)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
