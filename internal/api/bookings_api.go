package api

import (
	"context"
	"net/http"
	"strings"

	"sessionbook/internal/ledger"
	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
)

// CreateBookingRequest is the body of POST /api/v1/bookings.
type CreateBookingRequest struct {
	ProviderID string `json:"provider_id,omitempty"`
	ServiceID  string `json:"service_id"`
	Date       string `json:"date"`       // Format: YYYY-MM-DD
	StartTime  string `json:"start_time"` // Format: HH:MM
	EndTime    string `json:"end_time"`   // Format: HH:MM
}

// RescheduleRequest is the body of PUT .../reschedule.
type RescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// BookingResponse is a booking with its date rendered as YYYY-MM-DD.
type BookingResponse struct {
	*model.Booking
	Date string `json:"date"`
}

func toResponse(b *model.Booking) BookingResponse {
	return BookingResponse{Booking: b, Date: b.DateString()}
}

func toResponses(bookings []model.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toResponse(&bookings[i]))
	}
	return out
}

// handleCreateBooking books a session for the calling customer.
// POST /api/v1/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	var req CreateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := s.svc.Ledger.Create(r.Context(), ledger.CreateRequest{
		CustomerID: customer,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(b))
}

// GET /api/v1/customer/bookings
func (s *HTTPServer) handleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customer_bookings")

	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.Ledger.ListForCustomer(r.Context(), customer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponses(bookings))
}

// DELETE /api/v1/bookings/{id}
func (s *HTTPServer) handleCustomerCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customer_cancel")

	customer, ok := customerID(w, r)
	if !ok {
		return
	}
	b, err := s.svc.Ledger.CancelByCustomer(r.Context(), r.PathValue("id"), customer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

// handleProviderBookings lists the caller's bookings, filtered by
// ?status=pending,confirmed when given.
// GET /api/v1/provider/bookings
func (s *HTTPServer) handleProviderBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("provider_bookings")

	provider, ok := providerID(w, r)
	if !ok {
		return
	}

	var statuses []model.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, model.Status(part))
			}
		}
	}

	bookings, err := s.svc.Ledger.ListForProvider(r.Context(), provider, statuses)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponses(bookings))
}

// POST /api/v1/provider/bookings/{id}/accept
func (s *HTTPServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("accept_booking")
	s.providerTransition(w, r, s.svc.Ledger.Accept)
}

// POST /api/v1/provider/bookings/{id}/reject
func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reject_booking")
	s.providerTransition(w, r, s.svc.Ledger.Reject)
}

// POST /api/v1/provider/bookings/{id}/cancel
func (s *HTTPServer) handleProviderCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("provider_cancel")
	s.providerTransition(w, r, s.svc.Ledger.CancelByProvider)
}

type transitionFunc func(ctx context.Context, bookingID, providerID string) (*model.Booking, error)

func (s *HTTPServer) providerTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	provider, ok := providerID(w, r)
	if !ok {
		return
	}
	b, err := fn(r.Context(), r.PathValue("id"), provider)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}

// handleReschedule moves a booking to a new date and time.
// PUT /api/v1/provider/bookings/{id}/reschedule
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reschedule_booking")

	provider, ok := providerID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := s.svc.Ledger.Reschedule(r.Context(), ledger.RescheduleRequest{
		BookingID:  r.PathValue("id"),
		ProviderID: provider,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(b))
}
