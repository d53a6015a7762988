package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"sessionbook/internal/model"
	"sessionbook/internal/store"
)

// DB is the sqlite implementation of the schedule, catalog and booking stores.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

var (
	_ store.ScheduleStore = (*DB)(nil)
	_ store.CatalogStore  = (*DB)(nil)
	_ store.BookingStore  = (*DB)(nil)
)

// NewDB opens the database at path and runs migrations. Transactions begin
// IMMEDIATE so concurrent writers queue on the write lock instead of racing
// between their reads and writes.
func NewDB(path string, logger zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger = logger.With().Str("component", "db").Logger()
	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, path: path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			price REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		// A row here means the provider has a schedule, possibly with no days.
		`CREATE TABLE IF NOT EXISTS schedules (
			provider_id TEXT PRIMARY KEY,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_days (
			provider_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			PRIMARY KEY (provider_id, position),
			FOREIGN KEY (provider_id) REFERENCES schedules(provider_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_windows (
			provider_id TEXT NOT NULL,
			day_position INTEGER NOT NULL,
			position INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			session_duration INTEGER NOT NULL DEFAULT 30,
			PRIMARY KEY (provider_id, day_position, position),
			FOREIGN KEY (provider_id, day_position) REFERENCES schedule_days(provider_id, position) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			provider_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			cost REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (service_id) REFERENCES services(id),
			CHECK (status IN ('pending', 'confirmed', 'cancelled', 'completed')),
			CHECK (start_time < end_time)
		)`,

		// Two active bookings of a provider can never share a start time.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_start
			ON bookings(provider_id, date, start_time)
			WHERE status IN ('pending', 'confirmed')`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_provider_date ON bookings(provider_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_service_date ON bookings(service_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_services_provider ON services(provider_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// isUniqueViolation reports whether err is a sqlite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []model.Status) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}
