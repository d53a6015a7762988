package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sessionbook/internal/model"
	"sessionbook/internal/schedule"
)

// ServiceConfig is a bookable service of a provider.
type ServiceConfig struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
}

// ProviderConfig represents a single provider configuration.
type ProviderConfig struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	IsActive bool            `yaml:"is_active"`
	Services []ServiceConfig `yaml:"services"`
	// DefaultSchedule seeds the weekly schedule of providers that have none yet.
	DefaultSchedule []model.DayAvailability `yaml:"default_schedule,omitempty"`
}

// CatalogConfig is the root configuration for providers.yaml.
type CatalogConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadCatalog loads and validates the provider catalog from a YAML file.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/providers.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*CatalogConfig, error) {
	var cfg CatalogConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CatalogConfig) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no providers defined")
	}

	providerIDs := make(map[string]bool)
	serviceIDs := make(map[string]bool)

	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider[%d]: id is required", i)
		}
		if providerIDs[p.ID] {
			return fmt.Errorf("provider[%d]: duplicate id %q", i, p.ID)
		}
		providerIDs[p.ID] = true

		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}

		for j, s := range p.Services {
			if s.ID == "" {
				return fmt.Errorf("provider[%d].services[%d]: id is required", i, j)
			}
			if serviceIDs[s.ID] {
				return fmt.Errorf("provider[%d].services[%d]: duplicate id %q", i, j, s.ID)
			}
			serviceIDs[s.ID] = true

			if s.Name == "" {
				return fmt.Errorf("provider[%d].services[%d]: name is required", i, j)
			}
			if s.Price < 0 {
				return fmt.Errorf("provider[%d].services[%d]: price cannot be negative", i, j)
			}
		}

		if p.DefaultSchedule != nil {
			def := &model.ScheduleDefinition{ProviderID: p.ID, Days: p.DefaultSchedule}
			if _, err := schedule.Validate(def); err != nil {
				return fmt.Errorf("provider[%d].default_schedule: %w", i, err)
			}
		}
	}

	return nil
}

// Schedule returns the provider's default schedule, or nil when none is configured.
func (p ProviderConfig) Schedule() *model.ScheduleDefinition {
	if p.DefaultSchedule == nil {
		return nil
	}
	days := make([]model.DayAvailability, len(p.DefaultSchedule))
	for i, d := range p.DefaultSchedule {
		days[i] = model.DayAvailability{
			DayOfWeek: d.DayOfWeek,
			Windows:   append([]model.TimeWindow(nil), d.Windows...),
		}
	}
	return &model.ScheduleDefinition{ProviderID: p.ID, Days: days}
}
