package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sessionbook/internal/model"
)

func (db *DB) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	var p model.Provider
	err := db.QueryRowContext(ctx,
		`SELECT id, name, is_active FROM providers WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("provider %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query provider %s: %w", id, err)
	}
	return &p, nil
}

func (db *DB) GetService(ctx context.Context, id string) (*model.Service, error) {
	var s model.Service
	err := db.QueryRowContext(ctx,
		`SELECT id, provider_id, name, price FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.ProviderID, &s.Name, &s.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("service %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query service %s: %w", id, err)
	}
	return &s, nil
}

func (db *DB) ListServiceIDs(ctx context.Context, providerID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM services WHERE provider_id = ? ORDER BY id`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListProviders returns all providers ordered by id.
func (db *DB) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, is_active FROM providers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertProvider inserts or updates a provider, preserving created_at.
func (db *DB) UpsertProvider(ctx context.Context, p model.Provider) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO providers (id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", p.ID, err)
	}
	return nil
}

// UpsertService inserts or updates a service.
func (db *DB) UpsertService(ctx context.Context, s model.Service, description string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, provider_id, name, description, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_id = excluded.provider_id,
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			updated_at = excluded.updated_at`,
		s.ID, s.ProviderID, s.Name, description, s.Price, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert service %s: %w", s.ID, err)
	}
	return nil
}
