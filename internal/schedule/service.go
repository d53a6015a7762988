package schedule

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
	"sessionbook/internal/store"
)

// Service manages provider schedules.
type Service struct {
	schedules store.ScheduleStore
	catalog   store.CatalogStore
	logger    zerolog.Logger
}

// NewService creates a schedule service.
func NewService(schedules store.ScheduleStore, catalog store.CatalogStore, logger zerolog.Logger) *Service {
	return &Service{
		schedules: schedules,
		catalog:   catalog,
		logger:    logger.With().Str("component", "schedule").Logger(),
	}
}

// Get returns the provider's schedule.
func (s *Service) Get(ctx context.Context, providerID string) (*model.ScheduleDefinition, error) {
	if _, err := s.catalog.GetProvider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	def, err := s.schedules.GetSchedule(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if def == nil {
		return nil, model.NotFoundf("provider %s has no schedule", providerID)
	}
	return def, nil
}

// Replace validates def and stores it as the provider's whole schedule.
func (s *Service) Replace(ctx context.Context, providerID string, def *model.ScheduleDefinition) ([]Warning, error) {
	warnings, err := Validate(def)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetProvider(ctx, providerID); err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}

	def.ProviderID = providerID
	if err := s.schedules.ReplaceSchedule(ctx, def); err != nil {
		return nil, fmt.Errorf("replace schedule: %w", err)
	}

	metrics.AddScheduleWarnings(len(warnings))
	s.logger.Info().
		Str("provider_id", providerID).
		Int("days", len(def.Days)).
		Int("warnings", len(warnings)).
		Msg("schedule replaced")
	return warnings, nil
}
