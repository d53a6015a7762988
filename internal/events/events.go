package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sessionbook/internal/model"
)

// Booking event types.
const (
	BookingCreated     = "booking.created"
	BookingConfirmed   = "booking.confirmed"
	BookingCancelled   = "booking.cancelled"
	BookingRescheduled = "booking.rescheduled"
)

// AllBookingTypes lists every booking event type.
var AllBookingTypes = []string{BookingCreated, BookingConfirmed, BookingCancelled, BookingRescheduled}

// Event represents a lightweight domain event.
type Event struct {
	Type       string
	BookingID  string
	ProviderID string
	// Actor is the provider or customer id that caused the event.
	Actor     string
	Payload   []byte
	CreatedAt time.Time
}

// BookingPayload is the JSON body of booking events.
type BookingPayload struct {
	ID         string       `json:"id"`
	ServiceID  string       `json:"service_id"`
	CustomerID string       `json:"customer_id"`
	Date       string       `json:"date"`
	StartTime  string       `json:"start_time"`
	EndTime    string       `json:"end_time"`
	Status     model.Status `json:"status"`
	// Previous holds the slot a rescheduled booking moved away from.
	Previous *Slot `json:"previous,omitempty"`
}

// Slot is a dated time range.
type Slot struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// NewBookingEvent builds an event carrying b as its payload.
func NewBookingEvent(eventType, actor string, b *model.Booking, previous *Slot) Event {
	payload, _ := json.Marshal(BookingPayload{
		ID:         b.ID,
		ServiceID:  b.ServiceID,
		CustomerID: b.CustomerID,
		Date:       b.DateString(),
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Status:     b.Status,
		Previous:   previous,
	})
	return Event{
		Type:       eventType,
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		Actor:      actor,
		Payload:    payload,
	}
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher publishes events.
type Publisher interface {
	Publish(event Event)
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every event type in types.
func (b *EventBus) SubscribeAll(types []string, handler EventHandler) {
	for _, t := range types {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously;
// their errors are logged and never reach the publisher.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("type", event.Type).Str("booking_id", event.BookingID).Msg("event handler failed")
		}
	}
}
