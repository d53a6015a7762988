package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionbook/internal/availability"
	"sessionbook/internal/calendar"
	"sessionbook/internal/ledger"
	"sessionbook/internal/model"
	"sessionbook/internal/report"
	"sessionbook/internal/schedule"
	"sessionbook/internal/store/memstore"
)

const testAPIKey = "valid-key"

// 2025-03-03 is a Monday.
const monday = "2025-03-03"

type ErrorResponse struct {
	Error string `json:"error"`
}

func newTestStore(t *testing.T) *memstore.Store {
	t.Helper()
	st := memstore.New()
	st.AddProvider(model.Provider{ID: "p1", Name: "Dr. Reed", Active: true})
	st.AddProvider(model.Provider{ID: "p2", Name: "Dr. Lane", Active: true})
	st.AddService(model.Service{ID: "s1", ProviderID: "p1", Name: "Consultation", Price: 50})
	st.AddService(model.Service{ID: "s2", ProviderID: "p2", Name: "Therapy", Price: 80})
	require.NoError(t, st.ReplaceSchedule(context.Background(), &model.ScheduleDefinition{
		ProviderID: "p1",
		Days: []model.DayAvailability{
			{DayOfWeek: 0, Windows: []model.TimeWindow{{StartTime: "09:00", EndTime: "11:00", SessionDuration: 30}}},
			{DayOfWeek: 1, Windows: []model.TimeWindow{{StartTime: "14:00", EndTime: "15:00", SessionDuration: 60}}},
		},
	}))
	return st
}

func newTestHTTPServer(st *memstore.Store, opts Options) *HTTPServer {
	logger := zerolog.Nop()
	cal := calendar.NewService(st, st, st, calendar.Options{ClampAvailable: true}, logger)
	return NewHTTPServer(opts, Services{
		Ledger:       ledger.New(st, st, st, nil, nil, ledger.Options{}, logger),
		Availability: availability.NewService(st, st, st, logger),
		Calendar:     cal,
		Exporter:     report.NewExporter(cal, st, st, logger),
		Schedules:    schedule.NewService(st, st, logger),
	}, logger)
}

type call struct {
	method   string
	path     string
	body     any
	provider string
	customer string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	switch v := c.body.(type) {
	case nil:
	case string:
		body = []byte(v)
	default:
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(c.method, c.path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	if c.provider != "" {
		req.Header.Set("X-Provider-ID", c.provider)
	}
	if c.customer != "" {
		req.Header.Set("X-Customer-ID", c.customer)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func setup(t *testing.T) (http.Handler, *memstore.Store) {
	st := newTestStore(t)
	return newTestHTTPServer(st, Options{APIKey: testAPIKey}).Handler(), st
}

func createBooking(t *testing.T, h http.Handler, start, end string) BookingResponse {
	t.Helper()
	w := do(t, h, call{method: http.MethodPost, path: "/api/v1/bookings", customer: "c1", body: CreateBookingRequest{
		ServiceID: "s1", Date: monday, StartTime: start, EndTime: end,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[BookingResponse](t, w)
}

func TestAPIKeyRequired(t *testing.T) {
	h, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/p1/availability/"+monday, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid api key", decode[ErrorResponse](t, w).Error)
}

func TestAvailability(t *testing.T) {
	h, _ := setup(t)

	w := do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/availability/" + monday})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SessionsResponse](t, w)
	assert.Equal(t, monday, resp.Date)
	assert.Len(t, resp.AvailableSlots, 4)

	createBooking(t, h, "09:30", "10:00")

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/availability/" + monday})
	resp = decode[SessionsResponse](t, w)
	assert.Equal(t, []model.Session{
		{StartTime: "09:00", EndTime: "09:30"},
		{StartTime: "10:00", EndTime: "10:30"},
		{StartTime: "10:30", EndTime: "11:00"},
	}, resp.AvailableSlots)

	// Sunday has no windows.
	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/availability/2025-03-09"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[SessionsResponse](t, w).AvailableSlots)
	assert.Contains(t, w.Body.String(), `"available_slots":[]`)
}

func TestAvailabilityErrors(t *testing.T) {
	h, _ := setup(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"bad date", "/api/v1/providers/p1/availability/03-03-2025", http.StatusBadRequest},
		{"unknown provider", "/api/v1/providers/ghost/availability/" + monday, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, call{method: http.MethodGet, path: tt.path})
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCreateBooking(t *testing.T) {
	h, _ := setup(t)

	b := createBooking(t, h, "09:00", "09:30")
	assert.Equal(t, monday, b.Date)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, 50.0, b.Cost)
	assert.Equal(t, "p1", b.ProviderID)

	tests := []struct {
		name       string
		customer   string
		body       any
		wantStatus int
	}{
		{"missing customer", "", CreateBookingRequest{ServiceID: "s1", Date: monday, StartTime: "10:00", EndTime: "10:30"}, http.StatusUnauthorized},
		{"invalid JSON", "c1", "not json", http.StatusBadRequest},
		{"unknown field", "c1", map[string]string{"service": "s1"}, http.StatusBadRequest},
		{"bad time", "c1", CreateBookingRequest{ServiceID: "s1", Date: monday, StartTime: "9am", EndTime: "10:30"}, http.StatusBadRequest},
		{"unknown service", "c1", CreateBookingRequest{ServiceID: "nope", Date: monday, StartTime: "10:00", EndTime: "10:30"}, http.StatusNotFound},
		{"not a session", "c1", CreateBookingRequest{ServiceID: "s1", Date: monday, StartTime: "10:15", EndTime: "10:45"}, http.StatusConflict},
		{"already taken", "c2", CreateBookingRequest{ServiceID: "s1", Date: monday, StartTime: "09:00", EndTime: "09:30"}, http.StatusConflict},
		{"wrong provider", "c1", CreateBookingRequest{ProviderID: "p2", ServiceID: "s1", Date: monday, StartTime: "10:00", EndTime: "10:30"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, call{method: http.MethodPost, path: "/api/v1/bookings", customer: tt.customer, body: tt.body})
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestProviderLifecycle(t *testing.T) {
	h, _ := setup(t)
	b := createBooking(t, h, "09:00", "09:30")
	acceptPath := "/api/v1/provider/bookings/" + b.ID + "/accept"

	w := do(t, h, call{method: http.MethodPost, path: acceptPath, provider: "p2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings?status=pending", provider: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]BookingResponse](t, w), 1)

	w = do(t, h, call{method: http.MethodPost, path: acceptPath, provider: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusConfirmed, decode[BookingResponse](t, w).Status)

	// Accept only applies to pending bookings.
	w = do(t, h, call{method: http.MethodPost, path: acceptPath, provider: "p1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings?status=pending", provider: "p1"})
	assert.Empty(t, decode[[]BookingResponse](t, w))
	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings?status=confirmed", provider: "p1"})
	assert.Len(t, decode[[]BookingResponse](t, w), 1)

	w = do(t, h, call{method: http.MethodPost, path: "/api/v1/provider/bookings/" + b.ID + "/cancel", provider: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusCancelled, decode[BookingResponse](t, w).Status)

	w = do(t, h, call{method: http.MethodPost, path: "/api/v1/provider/bookings/" + b.ID + "/reject", provider: "p1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings?status=bogus", provider: "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, call{method: http.MethodPost, path: "/api/v1/provider/bookings/missing/accept", provider: "p1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomerBookings(t *testing.T) {
	h, _ := setup(t)
	b := createBooking(t, h, "10:00", "10:30")

	w := do(t, h, call{method: http.MethodGet, path: "/api/v1/customer/bookings", customer: "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]BookingResponse](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	w = do(t, h, call{method: http.MethodDelete, path: "/api/v1/bookings/" + b.ID, customer: "c2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, call{method: http.MethodDelete, path: "/api/v1/bookings/" + b.ID, customer: "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusCancelled, decode[BookingResponse](t, w).Status)

	// The cancelled booking no longer blocks the session.
	createBooking(t, h, "10:00", "10:30")
}

func TestReschedule(t *testing.T) {
	h, _ := setup(t)
	b := createBooking(t, h, "09:00", "09:30")
	other := createBooking(t, h, "10:00", "10:30")
	path := "/api/v1/provider/bookings/" + b.ID + "/reschedule"

	// Containment is enough: 09:45 is not a session boundary.
	w := do(t, h, call{method: http.MethodPut, path: path, provider: "p1", body: RescheduleRequest{
		Date: monday, StartTime: "09:15", EndTime: "09:45",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[BookingResponse](t, w)
	assert.Equal(t, "09:15", moved.StartTime)

	w = do(t, h, call{method: http.MethodPut, path: path, provider: "p1", body: RescheduleRequest{
		Date: monday, StartTime: "10:15", EndTime: "10:45",
	}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, call{method: http.MethodPut, path: path, provider: "p1", body: RescheduleRequest{
		Date: monday, StartTime: "12:00", EndTime: "12:30",
	}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings/" + b.ID + "/available-slots?date=" + monday, provider: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	split := decode[SlotSplitResponse](t, w)
	assert.Equal(t, monday, split.Date)
	assert.Equal(t, []model.Session{{StartTime: "10:00", EndTime: "10:30"}}, split.BookedSlots)
	assert.Len(t, split.AvailableSlots, 3)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings/" + other.ID + "/available-slots?start_date=2025-03-03&end_date=2025-03-04", provider: "p1"})
	require.Equal(t, http.StatusOK, w.Code)
	splits := decode[[]SlotSplitResponse](t, w)
	require.Len(t, splits, 2)
	assert.Equal(t, "2025-03-04", splits[1].Date)
	assert.Equal(t, []model.Session{{StartTime: "14:00", EndTime: "15:00"}}, splits[1].AvailableSlots)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings/" + b.ID + "/available-slots", provider: "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/bookings/" + b.ID + "/available-slots?start_date=2025-03-01&end_date=2025-04-15", provider: "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendar(t *testing.T) {
	h, _ := setup(t)
	createBooking(t, h, "09:00", "09:30")

	w := do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/calendar/2025/3"})
	require.Equal(t, http.StatusOK, w.Code)
	days := decode[[]DayResponse](t, w)
	require.Len(t, days, 31)
	assert.Equal(t, DayResponse{
		Date: monday, Status: calendar.StatePartiallyBooked, AvailablePercentage: 75, TotalSessions: 4, BookedSessions: 1,
	}, days[2])
	assert.Equal(t, calendar.StateUnavailable, days[1].Status)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/calendar/2025/13"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/calendar/abc/3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalendarExport(t *testing.T) {
	h, _ := setup(t)

	w := do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/p1/calendar/2025/3/export"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "calendar_p1_2025_03.xlsx")
	// xlsx files are zip archives.
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/ghost/calendar/2025/3/export"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalendarExportFilenameIsEscaped(t *testing.T) {
	st := newTestStore(t)
	st.AddProvider(model.Provider{ID: `x"; filename=evil.exe`, Active: true})
	h := newTestHTTPServer(st, Options{APIKey: testAPIKey}).Handler()

	w := do(t, h, call{method: http.MethodGet, path: "/api/v1/providers/x%22%3B%20filename=evil.exe/calendar/2025/3/export"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, `calendar_x"; filename=evil.exe_2025_03.xlsx`, params["filename"])
}

func TestSchedule(t *testing.T) {
	h, _ := setup(t)

	w := do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/schedule", provider: "p2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, call{method: http.MethodPut, path: "/api/v1/provider/schedule", provider: "p2", body: model.ScheduleDefinition{
		Days: []model.DayAvailability{
			{DayOfWeek: 2, Windows: []model.TimeWindow{{StartTime: "09:00", EndTime: "10:45"}}},
		},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ScheduleResponse](t, w)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, 15, resp.Warnings[0].UnusedMinutes)
	assert.Equal(t, "p2", resp.Schedule.ProviderID)

	w = do(t, h, call{method: http.MethodGet, path: "/api/v1/provider/schedule", provider: "p2"})
	require.Equal(t, http.StatusOK, w.Code)
	def := decode[model.ScheduleDefinition](t, w)
	require.Len(t, def.Days, 1)
	assert.Equal(t, 30, def.Days[0].Windows[0].SessionDuration)

	w = do(t, h, call{method: http.MethodPut, path: "/api/v1/provider/schedule", provider: "p2", body: model.ScheduleDefinition{
		Days: []model.DayAvailability{
			{DayOfWeek: 2, Windows: []model.TimeWindow{{StartTime: "09:00", EndTime: "10:00"}}},
			{DayOfWeek: 2, Windows: []model.TimeWindow{{StartTime: "13:00", EndTime: "14:00"}}},
		},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, call{method: http.MethodPut, path: "/api/v1/provider/schedule", body: model.ScheduleDefinition{}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSchedulePreview(t *testing.T) {
	h, _ := setup(t)

	w := do(t, h, call{method: http.MethodPost, path: "/api/v1/schedule/preview", body: model.ScheduleDefinition{
		Days: []model.DayAvailability{
			{DayOfWeek: 0, Windows: []model.TimeWindow{{StartTime: "09:00", EndTime: "10:00", SessionDuration: 20}}},
		},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[schedule.PreviewResult](t, w)
	require.Len(t, preview.Days, 1)
	assert.Len(t, preview.Days[0].Sessions, 3)
	assert.Empty(t, preview.Warnings)

	w = do(t, h, call{method: http.MethodPost, path: "/api/v1/schedule/preview", body: model.ScheduleDefinition{
		Days: []model.DayAvailability{
			{DayOfWeek: 7, Windows: []model.TimeWindow{{StartTime: "09:00", EndTime: "10:00"}}},
		},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := setup(t)
	w := do(t, h, call{method: http.MethodPost, path: "/api/v1/customer/bookings", customer: "c1"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRateLimit(t *testing.T) {
	st := newTestStore(t)
	h := newTestHTTPServer(st, Options{RatePerMinute: 1, RateBurst: 2, ReadTimeout: time.Second}).Handler()

	path := "/api/v1/providers/p1/availability/" + monday
	get := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("10.0.0.1"))
	assert.Equal(t, http.StatusOK, get("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, get("10.0.0.1"))
	assert.Equal(t, http.StatusOK, get("10.0.0.2"))
}

func TestClientIP(t *testing.T) {
	proxies, invalid := parseProxies([]string{"10.0.0.0/8", "192.0.2.1", "not-an-ip"})
	assert.Equal(t, []string{"not-an-ip"}, invalid)

	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{"direct peer", "198.51.100.7:1234", "", "198.51.100.7"},
		{"untrusted peer cannot spoof", "198.51.100.7:1234", "203.0.113.9", "198.51.100.7"},
		{"trusted proxy", "10.1.2.3:1234", "203.0.113.9", "203.0.113.9"},
		{"spoofed left-most hop ignored", "10.1.2.3:1234", "1.1.1.1, 203.0.113.9", "203.0.113.9"},
		{"chain of proxies", "192.0.2.1:80", "203.0.113.9, 10.9.9.9", "203.0.113.9"},
		{"trusted proxy without header", "10.1.2.3:1234", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, proxies.clientIP(req))
		})
	}
}

func TestRateLimitIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	st := newTestStore(t)
	h := newTestHTTPServer(st, Options{RatePerMinute: 1, RateBurst: 1}).Handler()

	path := "/api/v1/providers/p1/availability/" + monday
	get := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "198.51.100.7:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, get("203.0.113.2"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	l := newRateLimiter(60, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("b"))
	assert.Equal(t, 2, l.size())

	now = now.Add(5 * time.Minute)
	assert.True(t, l.allow("b"))

	now = now.Add(limiterIdleTTL - time.Minute)
	assert.True(t, l.allow("c"))
	// "a" was idle past the TTL; "b" was seen recently.
	assert.Equal(t, 2, l.size())
	_, ok := l.visitors["a"]
	assert.False(t, ok)
}
