package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sessionbook/internal/model"
	"sessionbook/internal/store"
)

const bookingColumns = `id, provider_id, service_id, customer_id, date, start_time, end_time, cost, status, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (*model.Booking, error) {
	var (
		b       model.Booking
		date    string
		status  string
		created sql.NullTime
		updated sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.ProviderID, &b.ServiceID, &b.CustomerID, &date,
		&b.StartTime, &b.EndTime, &b.Cost, &status, &created, &updated); err != nil {
		return nil, err
	}

	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("booking %s: invalid stored date %q", b.ID, date)
	}
	b.Date = d
	b.Status = model.Status(status)
	if !b.Status.Valid() {
		return nil, fmt.Errorf("booking %s: invalid stored status %q", b.ID, status)
	}
	b.CreatedAt = created.Time
	b.UpdatedAt = updated.Time
	return &b, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFoundf("booking %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query booking %s: %w", id, err)
	}
	return b, nil
}

func (db *DB) FindBookings(ctx context.Context, f store.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if len(f.ServiceIDs) > 0 {
		where = append(where, "service_id IN ("+placeholders(len(f.ServiceIDs))+")")
		for _, id := range f.ServiceIDs {
			args = append(args, id)
		}
	}
	if f.ProviderID != "" {
		where = append(where, "provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, model.FormatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, model.FormatDate(f.To))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		args = append(args, statusArgs(f.Statuses)...)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, start_time, id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// InsertBooking stores b if its time is free. The overlap check and the
// insert share one immediate transaction.
func (db *DB) InsertBooking(ctx context.Context, b *model.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkOverlapTx(ctx, tx, b.ProviderID, b.Date, b.StartTime, b.EndTime, ""); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProviderID, b.ServiceID, b.CustomerID, model.FormatDate(b.Date),
		b.StartTime, b.EndTime, b.Cost, string(b.Status), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Conflictf("session %s %s is already booked", model.FormatDate(b.Date), b.StartTime)
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// UpdateBookingStatus sets status when the current status is one of from.
func (db *DB) UpdateBookingStatus(ctx context.Context, id string, from []model.Status, status model.Status) error {
	if len(from) == 0 {
		return fmt.Errorf("update booking %s: no source statuses", id)
	}

	args := append([]any{string(status), time.Now().UTC(), id}, statusArgs(from)...)
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Conflictf("booking %s collides with another active booking", id)
		}
		return fmt.Errorf("update booking status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	current, err := db.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	return model.Conflictf("booking %s is %s", id, current.Status)
}

// UpdateBookingTime moves a booking if the new time is free of the
// provider's other active bookings. Check and update share one transaction.
func (db *DB) UpdateBookingTime(ctx context.Context, id string, date time.Time, start, end string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		providerID string
		status     model.Status
	)
	err = tx.QueryRowContext(ctx, `SELECT provider_id, status FROM bookings WHERE id = ?`, id).Scan(&providerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFoundf("booking %s", id)
	}
	if err != nil {
		return fmt.Errorf("query booking %s: %w", id, err)
	}
	if !status.Active() {
		return model.Conflictf("booking %s is %s", id, status)
	}

	if err := checkOverlapTx(ctx, tx, providerID, date, start, end, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET date = ?, start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'confirmed')`,
		model.FormatDate(date), start, end, time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Conflictf("session %s %s is already booked", model.FormatDate(date), start)
		}
		return fmt.Errorf("update booking time: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.Conflictf("booking %s is no longer active", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func checkOverlapTx(ctx context.Context, tx *sql.Tx, providerID string, date time.Time, start, end, excludeID string) error {
	var (
		otherID    string
		otherStart string
		otherEnd   string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, start_time, end_time FROM bookings
		WHERE provider_id = ? AND date = ? AND id != ?
			AND status IN ('pending', 'confirmed')
			AND start_time < ? AND end_time > ?
		ORDER BY start_time LIMIT 1`,
		providerID, model.FormatDate(date), excludeID, end, start,
	).Scan(&otherID, &otherStart, &otherEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	return model.Conflictf("%s %s-%s overlaps booking %s (%s-%s)",
		model.FormatDate(date), start, end, otherID, otherStart, otherEnd)
}
