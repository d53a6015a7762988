// Package memstore is an in-process implementation of the store contracts.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"sessionbook/internal/conflict"
	"sessionbook/internal/model"
	"sessionbook/internal/store"
)

// Store keeps providers, services, schedules and bookings in memory.
type Store struct {
	mu        sync.RWMutex
	providers map[string]model.Provider
	services  map[string]model.Service
	schedules map[string]model.ScheduleDefinition
	bookings  map[string]model.Booking
	now       func() time.Time
}

var (
	_ store.ScheduleStore = (*Store)(nil)
	_ store.CatalogStore  = (*Store)(nil)
	_ store.BookingStore  = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		providers: make(map[string]model.Provider),
		services:  make(map[string]model.Service),
		schedules: make(map[string]model.ScheduleDefinition),
		bookings:  make(map[string]model.Booking),
		now:       time.Now,
	}
}

func (s *Store) AddProvider(p model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *Store) AddService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// PutBooking stores b as-is without conflict checks.
func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *Store) GetProvider(_ context.Context, id string) (*model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, model.NotFoundf("provider %s", id)
	}
	return &p, nil
}

func (s *Store) GetService(_ context.Context, id string) (*model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, model.NotFoundf("service %s", id)
	}
	return &svc, nil
}

func (s *Store) ListServiceIDs(_ context.Context, providerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, svc := range s.services {
		if svc.ProviderID == providerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetSchedule(_ context.Context, providerID string) (*model.ScheduleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.schedules[providerID]
	if !ok {
		return nil, nil
	}
	return cloneSchedule(def), nil
}

func (s *Store) ReplaceSchedule(_ context.Context, def *model.ScheduleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[def.ProviderID] = *cloneSchedule(*def)
	return nil
}

func (s *Store) FindBookings(_ context.Context, f store.BookingFilter) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if matches(b, f) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, model.NotFoundf("booking %s", id)
	}
	return &b, nil
}

func (s *Store) InsertBooking(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFree(b.ProviderID, "", b.Date, b.StartTime, b.EndTime); err != nil {
		return err
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bookings[b.ID] = *b
	return nil
}

func (s *Store) UpdateBookingStatus(_ context.Context, id string, from []model.Status, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.NotFoundf("booking %s", id)
	}
	if !slices.Contains(from, b.Status) {
		return model.Conflictf("booking %s is %s", id, b.Status)
	}
	b.Status = status
	b.UpdatedAt = s.now()
	s.bookings[id] = b
	return nil
}

func (s *Store) UpdateBookingTime(_ context.Context, id string, date time.Time, start, end string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.NotFoundf("booking %s", id)
	}
	if !b.Status.Active() {
		return model.Conflictf("booking %s is %s", id, b.Status)
	}
	if err := s.checkFree(b.ProviderID, id, date, start, end); err != nil {
		return err
	}
	b.Date, b.StartTime, b.EndTime = date, start, end
	b.UpdatedAt = s.now()
	s.bookings[id] = b
	return nil
}

func (s *Store) checkFree(providerID, excludeID string, date time.Time, start, end string) error {
	var sameDay []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID && b.Date.Equal(date) {
			sameDay = append(sameDay, b)
		}
	}
	if hit := conflict.Find(start, end, sameDay, excludeID); hit != nil {
		return model.Conflictf("session %s-%s overlaps booking %s", start, end, hit.ID)
	}
	return nil
}

func matches(b model.Booking, f store.BookingFilter) bool {
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if f.CustomerID != "" && b.CustomerID != f.CustomerID {
		return false
	}
	if len(f.ServiceIDs) > 0 && !slices.Contains(f.ServiceIDs, b.ServiceID) {
		return false
	}
	if !f.From.IsZero() && b.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && b.Date.After(f.To) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
		return false
	}
	return true
}

func cloneSchedule(def model.ScheduleDefinition) *model.ScheduleDefinition {
	out := model.ScheduleDefinition{ProviderID: def.ProviderID, Days: make([]model.DayAvailability, len(def.Days))}
	for i, d := range def.Days {
		out.Days[i] = model.DayAvailability{
			DayOfWeek: d.DayOfWeek,
			Windows:   append([]model.TimeWindow(nil), d.Windows...),
		}
	}
	return &out
}
