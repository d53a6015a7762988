// Package api exposes the booking services over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sessionbook/internal/availability"
	"sessionbook/internal/calendar"
	"sessionbook/internal/ledger"
	"sessionbook/internal/model"
	"sessionbook/internal/schedule"
)

const (
	headerAPIKey     = "X-Api-Key"
	headerProviderID = "X-Provider-ID"
	headerCustomerID = "X-Customer-ID"
)

// BookingLedger is the write side of bookings.
type BookingLedger interface {
	Create(ctx context.Context, req ledger.CreateRequest) (*model.Booking, error)
	Accept(ctx context.Context, bookingID, providerID string) (*model.Booking, error)
	Reject(ctx context.Context, bookingID, providerID string) (*model.Booking, error)
	CancelByProvider(ctx context.Context, bookingID, providerID string) (*model.Booking, error)
	CancelByCustomer(ctx context.Context, bookingID, customerID string) (*model.Booking, error)
	Reschedule(ctx context.Context, req ledger.RescheduleRequest) (*model.Booking, error)
	ListForProvider(ctx context.Context, providerID string, statuses []model.Status) ([]model.Booking, error)
	ListForCustomer(ctx context.Context, customerID string) ([]model.Booking, error)
}

// AvailabilityQuerier answers which sessions are open.
type AvailabilityQuerier interface {
	OpenSessions(ctx context.Context, providerID string, date time.Time) ([]model.Session, error)
	RescheduleSlots(ctx context.Context, bookingID, providerID string, date time.Time) (*availability.SlotSplit, error)
	RescheduleRange(ctx context.Context, bookingID, providerID string, from, to time.Time) ([]availability.SlotSplit, error)
}

// CalendarAggregator summarizes a month.
type CalendarAggregator interface {
	Month(ctx context.Context, providerID string, year int, month time.Month) ([]calendar.Day, error)
}

// CalendarExporter renders a month as a spreadsheet.
type CalendarExporter interface {
	WriteMonth(ctx context.Context, w io.Writer, providerID string, year int, month time.Month) error
}

// ScheduleManager reads and replaces weekly schedules.
type ScheduleManager interface {
	Get(ctx context.Context, providerID string) (*model.ScheduleDefinition, error)
	Replace(ctx context.Context, providerID string, def *model.ScheduleDefinition) ([]schedule.Warning, error)
}

// Services are the handlers' collaborators.
type Services struct {
	Ledger       BookingLedger
	Availability AvailabilityQuerier
	Calendar     CalendarAggregator
	Exporter     CalendarExporter
	Schedules    ScheduleManager
}

// Options configure the server.
type Options struct {
	Address string
	// APIKey, when set, is required in X-Api-Key on every request.
	APIKey        string
	RatePerMinute int
	RateBurst     int
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For is used to
	// identify the client. Other peers are identified by their address.
	TrustedProxies []string
	ReadTimeout    time.Duration
}

// HTTPServer serves the booking API.
type HTTPServer struct {
	server  *http.Server
	svc     Services
	apiKey  string
	limiter *rateLimiter
	proxies proxySet
	log     zerolog.Logger
}

func NewHTTPServer(opts Options, svc Services, logger zerolog.Logger) *HTTPServer {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}

	s := &HTTPServer{
		svc:    svc,
		apiKey: opts.APIKey,
		log:    logger.With().Str("component", "http").Logger(),
	}
	if opts.RatePerMinute > 0 {
		s.limiter = newRateLimiter(opts.RatePerMinute, opts.RateBurst)
	}
	proxies, invalid := parseProxies(opts.TrustedProxies)
	if len(invalid) > 0 {
		s.log.Warn().Strs("entries", invalid).Msg("ignoring invalid trusted proxies")
	}
	s.proxies = proxies

	mux := http.NewServeMux()
	s.routes(mux)

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           s.withRateLimit(s.withAuth(mux)),
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadTimeout,
		WriteTimeout:      2 * opts.ReadTimeout,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/providers/{provider}/availability/{date}", s.handleAvailability)
	mux.HandleFunc("GET /api/v1/providers/{provider}/calendar/{year}/{month}", s.handleCalendar)
	mux.HandleFunc("GET /api/v1/providers/{provider}/calendar/{year}/{month}/export", s.handleCalendarExport)

	mux.HandleFunc("GET /api/v1/provider/schedule", s.handleGetSchedule)
	mux.HandleFunc("PUT /api/v1/provider/schedule", s.handleReplaceSchedule)
	mux.HandleFunc("POST /api/v1/schedule/preview", s.handlePreviewSchedule)

	mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/customer/bookings", s.handleCustomerBookings)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", s.handleCustomerCancel)

	mux.HandleFunc("GET /api/v1/provider/bookings", s.handleProviderBookings)
	mux.HandleFunc("POST /api/v1/provider/bookings/{id}/accept", s.handleAccept)
	mux.HandleFunc("POST /api/v1/provider/bookings/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/v1/provider/bookings/{id}/cancel", s.handleProviderCancel)
	mux.HandleFunc("PUT /api/v1/provider/bookings/{id}/reschedule", s.handleReschedule)
	mux.HandleFunc("GET /api/v1/provider/bookings/{id}/available-slots", s.handleRescheduleSlots)
}

// Handler returns the root handler including middleware.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get(headerAPIKey) != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.proxies.clientIP(r)
		if !s.limiter.allow(ip) {
			s.log.Warn().Str("ip", ip).Msg("rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded; try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// providerID returns the calling provider or writes 401.
func providerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return identity(w, r, headerProviderID)
}

// customerID returns the calling customer or writes 401.
func customerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return identity(w, r, headerCustomerID)
}

func identity(w http.ResponseWriter, r *http.Request, header string) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" {
		writeError(w, http.StatusUnauthorized, header+" header is required")
		return "", false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail maps a service error to its HTTP status.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
