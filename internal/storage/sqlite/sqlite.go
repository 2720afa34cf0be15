// Package sqlite persists flights, their events and global state in a
// single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yegors/airfield-ops/pkg/logger"
)

// timeLayout is fixed width UTC so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Open opens the database file, applies connection pragmas and creates the schema
func Open(dbPath string, log *logger.Logger) (*sql.DB, error) {
	log = log.Named("sqlite")
	log.Info("Initializing SQLite storage", logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA foreign_keys=ON", "foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.what, err)
		}
	}

	if err := initDatabase(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id TEXT PRIMARY KEY,
			aircraft_id TEXT NOT NULL,
			pic TEXT,
			student_id TEXT NOT NULL,
			instructor_id TEXT,
			type_of_flight TEXT NOT NULL DEFAULT '',
			slot_order INTEGER,
			runway_in_use TEXT,
			status TEXT NOT NULL,
			phase TEXT NOT NULL,
			ground_position TEXT,
			radial_deg REAL,
			distance_nm REAL,
			altitude_ft REAL,
			inbound_outbound TEXT,
			go_around_count INTEGER NOT NULL DEFAULT 0,
			landing_count INTEGER NOT NULL DEFAULT 0,
			is_in_tower INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			pushed_to_tower_at TEXT,
			takeoff_at TEXT,
			last_landed_at TEXT,
			completed_at TEXT,
			updated_at TEXT NOT NULL,
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_id TEXT NOT NULL REFERENCES flights(id),
			event_type TEXT NOT NULL,
			message TEXT NOT NULL,
			meta TEXT,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_events table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS global_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create global_state table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_flights_status ON flights(status)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_created_at ON flights(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_completed_at ON flights(completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_flight_events_flight_id ON flight_events(flight_id, id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Info("Database schema initialized successfully")
	return nil
}

// beginTx starts a transaction, retrying a few times while the database is busy
func beginTx(ctx context.Context, db *sql.DB, log *logger.Logger) (*sql.Tx, error) {
	var (
		tx  *sql.Tx
		err error
	)
	for i := 0; i < 3; i++ {
		tx, err = db.BeginTx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		log.Warn("Failed to begin transaction, retrying...",
			logger.Error(err),
			logger.Int("attempt", i+1))

		// 100ms, 200ms, 400ms
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(100*(1<<i)) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("failed to begin transaction: %w", err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC 3339
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
