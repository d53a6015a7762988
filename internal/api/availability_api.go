package api

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"time"

	"sessionbook/internal/availability"
	"sessionbook/internal/calendar"
	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
	"sessionbook/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SessionsResponse lists the open sessions of a date.
type SessionsResponse struct {
	Date           string          `json:"date"`
	AvailableSlots []model.Session `json:"available_slots"`
}

// DayResponse is one calendar day.
type DayResponse struct {
	Date                string            `json:"date"`
	Status              calendar.DayState `json:"status"`
	AvailablePercentage float64           `json:"available_percentage"`
	TotalSessions       int               `json:"total_sessions"`
	BookedSessions      int               `json:"booked_sessions"`
}

// SlotSplitResponse is a date's sessions partitioned for a reschedule.
type SlotSplitResponse struct {
	Date           string          `json:"date"`
	AvailableSlots []model.Session `json:"available_slots"`
	BookedSlots    []model.Session `json:"booked_slots"`
}

// handleAvailability returns the open sessions of a provider on a date.
// GET /api/v1/providers/{provider}/availability/{date}
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	date, err := model.ParseDate(r.PathValue("date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sessions, err := s.svc.Availability.OpenSessions(r.Context(), r.PathValue("provider"), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}

	writeJSON(w, http.StatusOK, SessionsResponse{Date: model.FormatDate(date), AvailableSlots: sessions})
}

// handleCalendar returns one entry per day of the month.
// GET /api/v1/providers/{provider}/calendar/{year}/{month}
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")

	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}

	days, err := s.svc.Calendar.Month(r.Context(), r.PathValue("provider"), year, month)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]DayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, DayResponse{
			Date:                model.FormatDate(d.Date),
			Status:              d.Status,
			AvailablePercentage: d.AvailablePercentage,
			TotalSessions:       d.TotalSessions,
			BookedSessions:      d.BookedSessions,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCalendarExport returns the month as an .xlsx workbook.
// GET /api/v1/providers/{provider}/calendar/{year}/{month}/export
func (s *HTTPServer) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar_export")

	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	provider := r.PathValue("provider")

	var buf bytes.Buffer
	if err := s.svc.Exporter.WriteMonth(r.Context(), &buf, provider, year, month); err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": report.Filename(provider, year, month),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleRescheduleSlots lists the sessions a booking could move to.
// GET /api/v1/provider/bookings/{id}/available-slots?date=YYYY-MM-DD
// GET /api/v1/provider/bookings/{id}/available-slots?start_date=...&end_date=...
func (s *HTTPServer) handleRescheduleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reschedule_slots")

	provider, ok := providerID(w, r)
	if !ok {
		return
	}
	bookingID := r.PathValue("id")
	q := r.URL.Query()

	if dateStr := q.Get("date"); dateStr != "" {
		date, err := model.ParseDate(dateStr)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		split, err := s.svc.Availability.RescheduleSlots(r.Context(), bookingID, provider, date)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, splitResponse(*split))
		return
	}

	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		writeError(w, http.StatusBadRequest, "date or start_date and end_date are required")
		return
	}
	from, err := model.ParseDate(q.Get("start_date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := model.ParseDate(q.Get("end_date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	splits, err := s.svc.Availability.RescheduleRange(r.Context(), bookingID, provider, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]SlotSplitResponse, 0, len(splits))
	for _, sp := range splits {
		out = append(out, splitResponse(sp))
	}
	writeJSON(w, http.StatusOK, out)
}

func splitResponse(sp availability.SlotSplit) SlotSplitResponse {
	out := SlotSplitResponse{
		Date:           model.FormatDate(sp.Date),
		AvailableSlots: sp.Available,
		BookedSlots:    sp.Booked,
	}
	if out.AvailableSlots == nil {
		out.AvailableSlots = []model.Session{}
	}
	if out.BookedSlots == nil {
		out.BookedSlots = []model.Session{}
	}
	return out
}

func yearMonth(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return 0, 0, false
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month")
		return 0, 0, false
	}
	return year, time.Month(month), true
}
