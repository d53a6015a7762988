// Package ledger validates and commits booking writes.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sessionbook/internal/conflict"
	"sessionbook/internal/events"
	"sessionbook/internal/lock"
	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
	"sessionbook/internal/schedule"
	"sessionbook/internal/slots"
	"sessionbook/internal/store"
)

const defaultLockWait = 5 * time.Second

// Options tune the ledger.
type Options struct {
	// LockWait bounds how long a write waits for the provider's day lock.
	LockWait time.Duration
}

// Ledger owns every booking state change.
type Ledger struct {
	schedules store.ScheduleStore
	catalog   store.CatalogStore
	bookings  store.BookingStore
	locker    lock.Locker
	events    events.Publisher
	opts      Options
	logger    zerolog.Logger
	newID     func() string
}

// New creates a ledger. A nil locker falls back to in-process locking and a
// nil publisher drops events.
func New(
	schedules store.ScheduleStore,
	catalog store.CatalogStore,
	bookings store.BookingStore,
	locker lock.Locker,
	publisher events.Publisher,
	opts Options,
	logger zerolog.Logger,
) *Ledger {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	return &Ledger{
		schedules: schedules,
		catalog:   catalog,
		bookings:  bookings,
		locker:    locker,
		events:    publisher,
		opts:      opts,
		logger:    logger.With().Str("component", "ledger").Logger(),
		newID:     uuid.NewString,
	}
}

// CreateRequest is a customer's request for one session.
type CreateRequest struct {
	CustomerID string
	// ProviderID is optional; when set the service must belong to it.
	ProviderID string
	ServiceID  string
	Date       string
	StartTime  string
	EndTime    string
}

// RescheduleRequest moves a booking to a new date and time.
type RescheduleRequest struct {
	BookingID  string
	ProviderID string
	Date       string
	StartTime  string
	EndTime    string
}

// Create books the requested session. The time must be exactly one of the
// sessions generated for that date and must not overlap another pending or
// confirmed booking of the provider.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (b *model.Booking, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("create", started, err) }()

	if err := required("customer_id", req.CustomerID, "service_id", req.ServiceID); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if _, err := slots.ParseRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	svc, err := l.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if req.ProviderID != "" && svc.ProviderID != req.ProviderID {
		return nil, model.NotFoundf("service %s is not offered by provider %s", svc.ID, req.ProviderID)
	}
	provider, err := l.catalog.GetProvider(ctx, svc.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	if !provider.Active {
		return nil, model.NotFoundf("provider %s is not accepting bookings", provider.ID)
	}

	def, err := l.schedules.GetSchedule(ctx, provider.ID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if def == nil {
		return nil, model.NotFoundf("provider %s has no schedule", provider.ID)
	}

	ok, err := slots.MatchesSession(schedule.Windows(def, date), req.StartTime, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("generate sessions: %w", err)
	}
	if !ok {
		return nil, model.Conflictf("%s %s-%s is not a bookable session", req.Date, req.StartTime, req.EndTime)
	}

	booking := &model.Booking{
		ID:         l.newID(),
		ProviderID: provider.ID,
		ServiceID:  svc.ID,
		CustomerID: req.CustomerID,
		Date:       date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Cost:       svc.Price,
		Status:     model.StatusPending,
	}

	err = l.withDayLock(ctx, func(ctx context.Context) error {
		if err := l.checkFree(ctx, provider.ID, date, req.StartTime, req.EndTime, ""); err != nil {
			return err
		}
		if err := l.bookings.InsertBooking(ctx, booking); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	}, lock.BookingKey(provider.ID, date))
	if err != nil {
		l.logger.Debug().Err(err).Str("service_id", svc.ID).Str("date", req.Date).
			Str("start", req.StartTime).Msg("create rejected")
		return nil, err
	}

	l.logger.Info().
		Str("booking_id", booking.ID).
		Str("provider_id", booking.ProviderID).
		Str("customer_id", booking.CustomerID).
		Str("date", req.Date).
		Str("start", booking.StartTime).
		Str("end", booking.EndTime).
		Msg("booking created")
	l.publish(events.BookingCreated, req.CustomerID, booking, nil)
	return booking, nil
}

// Accept confirms a pending booking of the provider.
func (l *Ledger) Accept(ctx context.Context, bookingID, providerID string) (b *model.Booking, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("accept", started, err) }()

	b, err = l.ownedByProvider(ctx, bookingID, providerID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.StatusPending {
		return nil, model.Conflictf("cannot accept booking with status %s", b.Status)
	}
	if err := l.bookings.UpdateBookingStatus(ctx, b.ID, []model.Status{model.StatusPending}, model.StatusConfirmed); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	b.Status = model.StatusConfirmed

	l.logger.Info().Str("booking_id", b.ID).Str("provider_id", providerID).Msg("booking confirmed")
	l.publish(events.BookingConfirmed, providerID, b, nil)
	return b, nil
}

// Reject declines a booking of the provider.
func (l *Ledger) Reject(ctx context.Context, bookingID, providerID string) (b *model.Booking, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("reject", started, err) }()

	return l.cancelByProvider(ctx, bookingID, providerID, "rejected")
}

// CancelByProvider cancels a booking of the provider.
func (l *Ledger) CancelByProvider(ctx context.Context, bookingID, providerID string) (b *model.Booking, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("provider_cancel", started, err) }()

	return l.cancelByProvider(ctx, bookingID, providerID, "cancelled by provider")
}

// CancelByCustomer cancels one of the customer's own bookings.
func (l *Ledger) CancelByCustomer(ctx context.Context, bookingID, customerID string) (b *model.Booking, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("customer_cancel", started, err) }()

	if err := required("booking_id", bookingID, "customer_id", customerID); err != nil {
		return nil, err
	}
	b, err = l.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.CustomerID != customerID {
		return nil, model.Forbiddenf("booking %s does not belong to customer %s", bookingID, customerID)
	}
	if err := l.cancel(ctx, b); err != nil {
		return nil, err
	}

	l.logger.Info().Str("booking_id", b.ID).Str("customer_id", customerID).Msg("booking cancelled by customer")
	l.publish(events.BookingCancelled, customerID, b, nil)
	return b, nil
}

// Reschedule moves a booking of the provider to a new date and time. The new
// time only has to lie inside one of the target weekday's windows, which is
// looser than the exact session match Create requires.
func (l *Ledger) Reschedule(ctx context.Context, req RescheduleRequest) (b *model.Booking, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("reschedule", started, err) }()

	if err := required("booking_id", req.BookingID, "provider_id", req.ProviderID); err != nil {
		return nil, err
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	r, err := slots.ParseRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	b, err = l.ownedByProvider(ctx, req.BookingID, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, model.Conflictf("cannot reschedule booking with status %s", b.Status)
	}

	def, err := l.schedules.GetSchedule(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if def == nil {
		return nil, model.NotFoundf("provider %s has no schedule", req.ProviderID)
	}
	inside, err := slots.WithinWindow(schedule.Windows(def, date), r)
	if err != nil {
		return nil, fmt.Errorf("check windows: %w", err)
	}
	if !inside {
		return nil, model.Conflictf("%s %s-%s is outside the provider's availability", req.Date, req.StartTime, req.EndTime)
	}

	previous := &events.Slot{Date: b.DateString(), StartTime: b.StartTime, EndTime: b.EndTime}
	err = l.withDayLock(ctx, func(ctx context.Context) error {
		if err := l.checkFree(ctx, req.ProviderID, date, req.StartTime, req.EndTime, b.ID); err != nil {
			return err
		}
		if err := l.bookings.UpdateBookingTime(ctx, b.ID, date, req.StartTime, req.EndTime); err != nil {
			return fmt.Errorf("update booking time: %w", err)
		}
		return nil
	}, lock.BookingKey(req.ProviderID, b.Date), lock.BookingKey(req.ProviderID, date))
	if err != nil {
		l.logger.Debug().Err(err).Str("booking_id", b.ID).Str("date", req.Date).Msg("reschedule rejected")
		return nil, err
	}

	b.Date, b.StartTime, b.EndTime = date, req.StartTime, req.EndTime
	l.logger.Info().
		Str("booking_id", b.ID).
		Str("provider_id", req.ProviderID).
		Str("from", previous.Date+" "+previous.StartTime).
		Str("to", req.Date+" "+req.StartTime).
		Msg("booking rescheduled")
	l.publish(events.BookingRescheduled, req.ProviderID, b, previous)
	return b, nil
}

// ListForProvider returns the provider's bookings with any of statuses, all when empty.
func (l *Ledger) ListForProvider(ctx context.Context, providerID string, statuses []model.Status) ([]model.Booking, error) {
	if err := required("provider_id", providerID); err != nil {
		return nil, err
	}
	for _, s := range statuses {
		if !s.Valid() {
			return nil, model.Validationf("unknown status %q", s)
		}
	}
	if _, err := l.catalog.GetProvider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	serviceIDs, err := l.catalog.ListServiceIDs(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if len(serviceIDs) == 0 {
		return []model.Booking{}, nil
	}
	return l.bookings.FindBookings(ctx, store.BookingFilter{ServiceIDs: serviceIDs, Statuses: statuses})
}

// ListForCustomer returns every booking the customer made.
func (l *Ledger) ListForCustomer(ctx context.Context, customerID string) ([]model.Booking, error) {
	if err := required("customer_id", customerID); err != nil {
		return nil, err
	}
	return l.bookings.FindBookings(ctx, store.BookingFilter{CustomerID: customerID})
}

func (l *Ledger) cancelByProvider(ctx context.Context, bookingID, providerID, reason string) (*model.Booking, error) {
	b, err := l.ownedByProvider(ctx, bookingID, providerID)
	if err != nil {
		return nil, err
	}
	if err := l.cancel(ctx, b); err != nil {
		return nil, err
	}

	l.logger.Info().Str("booking_id", b.ID).Str("provider_id", providerID).Str("reason", reason).Msg("booking cancelled")
	l.publish(events.BookingCancelled, providerID, b, nil)
	return b, nil
}

func (l *Ledger) cancel(ctx context.Context, b *model.Booking) error {
	if b.Status.Terminal() {
		return model.Conflictf("booking already finalized with status %s", b.Status)
	}
	if err := l.bookings.UpdateBookingStatus(ctx, b.ID, model.ActiveStatuses, model.StatusCancelled); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	b.Status = model.StatusCancelled
	return nil
}

// ownedByProvider loads a booking and checks that its service belongs to providerID.
func (l *Ledger) ownedByProvider(ctx context.Context, bookingID, providerID string) (*model.Booking, error) {
	if err := required("booking_id", bookingID, "provider_id", providerID); err != nil {
		return nil, err
	}
	b, err := l.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	svc, err := l.catalog.GetService(ctx, b.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc.ProviderID != providerID {
		return nil, model.Forbiddenf("booking %s does not belong to provider %s", bookingID, providerID)
	}
	return b, nil
}

// checkFree fails with a conflict when [start, end) overlaps a pending or
// confirmed booking of any of the provider's services on date.
func (l *Ledger) checkFree(ctx context.Context, providerID string, date time.Time, start, end, excludeID string) error {
	serviceIDs, err := l.catalog.ListServiceIDs(ctx, providerID)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	if len(serviceIDs) == 0 {
		return nil
	}
	existing, err := l.bookings.FindBookings(ctx, store.BookingFilter{
		ServiceIDs: serviceIDs,
		From:       date,
		To:         date,
		Statuses:   model.ActiveStatuses,
	})
	if err != nil {
		return fmt.Errorf("find bookings: %w", err)
	}
	if hit := conflict.Find(start, end, existing, excludeID); hit != nil {
		return model.Conflictf("%s %s-%s overlaps an existing booking %s-%s",
			model.FormatDate(date), start, end, hit.StartTime, hit.EndTime)
	}
	return nil
}

func (l *Ledger) withDayLock(ctx context.Context, fn func(ctx context.Context) error, keys ...string) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.opts.LockWait)
	defer cancel()

	release, err := lock.AcquireAll(lockCtx, l.locker, keys...)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (l *Ledger) publish(eventType, actor string, b *model.Booking, previous *events.Slot) {
	if l.events == nil {
		return
	}
	l.events.Publish(events.NewBookingEvent(eventType, actor, b, previous))
}

// required checks name/value pairs for blank values.
func required(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return model.Validationf("%s required", strings.Join(missing, ", "))
	}
	return nil
}
