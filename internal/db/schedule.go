package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sessionbook/internal/model"
)

// GetSchedule returns the provider's weekly schedule, or nil when none was set.
func (db *DB) GetSchedule(ctx context.Context, providerID string) (*model.ScheduleDefinition, error) {
	var updated sql.NullTime
	err := db.QueryRowContext(ctx, `SELECT updated_at FROM schedules WHERE provider_id = ?`, providerID).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}

	def := &model.ScheduleDefinition{ProviderID: providerID, Days: []model.DayAvailability{}}

	dayRows, err := db.QueryContext(ctx, `
		SELECT position, day_of_week FROM schedule_days
		WHERE provider_id = ? ORDER BY position`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query schedule days: %w", err)
	}
	index := map[int]int{}
	for dayRows.Next() {
		var pos, dow int
		if err := dayRows.Scan(&pos, &dow); err != nil {
			dayRows.Close()
			return nil, err
		}
		index[pos] = len(def.Days)
		def.Days = append(def.Days, model.DayAvailability{DayOfWeek: dow})
	}
	dayRows.Close()
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	winRows, err := db.QueryContext(ctx, `
		SELECT day_position, start_time, end_time, session_duration FROM schedule_windows
		WHERE provider_id = ? ORDER BY day_position, position`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query schedule windows: %w", err)
	}
	defer winRows.Close()
	for winRows.Next() {
		var (
			dayPos int
			w      model.TimeWindow
		)
		if err := winRows.Scan(&dayPos, &w.StartTime, &w.EndTime, &w.SessionDuration); err != nil {
			return nil, err
		}
		i, ok := index[dayPos]
		if !ok {
			continue
		}
		def.Days[i].Windows = append(def.Days[i].Windows, w)
	}
	return def, winRows.Err()
}

// ReplaceSchedule deletes the provider's schedule and inserts def in one transaction.
func (db *DB) ReplaceSchedule(ctx context.Context, def *model.ScheduleDefinition) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE provider_id = ?`, def.ProviderID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (provider_id, updated_at) VALUES (?, ?)`, def.ProviderID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}

	for pos, day := range def.Days {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedule_days (provider_id, position, day_of_week) VALUES (?, ?, ?)`,
			def.ProviderID, pos, day.DayOfWeek,
		); err != nil {
			return fmt.Errorf("insert day %d: %w", day.DayOfWeek, err)
		}
		for wpos, w := range day.Windows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO schedule_windows (provider_id, day_position, position, start_time, end_time, session_duration)
				VALUES (?, ?, ?, ?, ?, ?)`,
				def.ProviderID, pos, wpos, w.StartTime, w.EndTime, w.Duration(),
			); err != nil {
				return fmt.Errorf("insert window %d of day %d: %w", wpos, day.DayOfWeek, err)
			}
		}
	}

	return tx.Commit()
}
