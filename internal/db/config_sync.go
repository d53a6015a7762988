package db

import (
	"context"
	"fmt"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/model"
)

// SyncCatalogFromConfig applies providers.yaml to the database. It upserts
// providers and services, seeds default schedules for providers that have
// none, and marks providers missing from the file inactive.
func (db *DB) SyncCatalogFromConfig(ctx context.Context, cfg *config.CatalogConfig) error {
	if cfg == nil {
		return fmt.Errorf("catalog config is nil")
	}

	seen := make(map[string]struct{}, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if err := db.UpsertProvider(ctx, model.Provider{ID: p.ID, Name: p.Name, Active: p.IsActive}); err != nil {
			return err
		}
		seen[p.ID] = struct{}{}

		for _, s := range p.Services {
			svc := model.Service{ID: s.ID, ProviderID: p.ID, Name: s.Name, Price: s.Price}
			if err := db.UpsertService(ctx, svc, s.Description); err != nil {
				return err
			}
		}

		if err := db.seedSchedule(ctx, p); err != nil {
			return fmt.Errorf("sync provider %s schedule: %w", p.ID, err)
		}
	}

	providers, err := db.ListProviders(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, p := range providers {
		if _, ok := seen[p.ID]; ok || !p.Active {
			continue
		}
		if _, err := db.ExecContext(ctx, `UPDATE providers SET is_active = 0, updated_at = ? WHERE id = ?`, now, p.ID); err != nil {
			return fmt.Errorf("deactivate provider %s: %w", p.ID, err)
		}
		db.logger.Info().Str("provider_id", p.ID).Msg("provider removed from catalog, deactivated")
	}

	db.logger.Info().Int("providers", len(cfg.Providers)).Msg("catalog synced")
	return nil
}

// seedSchedule stores the configured default schedule unless the provider
// already has one of its own.
func (db *DB) seedSchedule(ctx context.Context, p config.ProviderConfig) error {
	def := p.Schedule()
	if def == nil {
		return nil
	}
	existing, err := db.GetSchedule(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return db.ReplaceSchedule(ctx, def)
}
