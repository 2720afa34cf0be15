package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/airfield-ops/internal/flight"
	"github.com/yegors/airfield-ops/pkg/logger"
)

const flightColumns = `id, aircraft_id, pic, student_id, instructor_id, type_of_flight, slot_order,
	runway_in_use, status, phase, ground_position, radial_deg, distance_nm, altitude_ft,
	inbound_outbound, go_around_count, landing_count, is_in_tower, created_at, started_at,
	pushed_to_tower_at, takeoff_at, last_landed_at, completed_at, updated_at, version`

// FlightStorage is a SQLite-based flight and event store
type FlightStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFlightStorage opens dbPath and returns a flight store over it
func NewFlightStorage(dbPath string, log *logger.Logger) (*FlightStorage, error) {
	db, err := Open(dbPath, log)
	if err != nil {
		return nil, err
	}
	return &FlightStorage{db: db, logger: log.Named("sqlite-flights")}, nil
}

// Close closes the database connection
func (s *FlightStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDB returns the database connection
func (s *FlightStorage) GetDB() *sql.DB {
	return s.db
}

// Get returns one flight
func (s *FlightStorage) Get(ctx context.Context, id string) (*flight.Flight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flight.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flight %s: %w", id, err)
	}
	return f, nil
}

// Insert writes a new flight and its events in one transaction
func (s *FlightStorage) Insert(ctx context.Context, f *flight.Flight, events []flight.Event) (err error) {
	args, err := flightArgs(f)
	if err != nil {
		return err
	}

	tx, err := beginTx(ctx, s.db, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error("Failed to rollback transaction", logger.Error(rollbackErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO flights (`+flightColumns+`) VALUES (`+placeholders(len(args))+`)`, args...); err != nil {
		return fmt.Errorf("failed to insert flight: %w", err)
	}
	if err = insertEvents(ctx, tx, f.ID, events); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flight insert: %w", err)
	}
	return nil
}

// Update replaces the row when id, version, status and phase still match
// expect, appending events in the same transaction
func (s *FlightStorage) Update(ctx context.Context, expect flight.Expectation, next *flight.Flight, events []flight.Event) (err error) {
	args, err := flightArgs(next)
	if err != nil {
		return err
	}

	tx, err := beginTx(ctx, s.db, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error("Failed to rollback transaction", logger.Error(rollbackErr))
			}
		}
	}()

	cols := strings.Split(flightColumns, ",")
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, strings.TrimSpace(c)+" = ?")
	}
	query := `UPDATE flights SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND version = ? AND status = ? AND phase = ?`
	updateArgs := append(args[1:], expect.ID, expect.Version, string(expect.Status), string(expect.Phase))

	res, err := tx.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update flight %s: %w", expect.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM flights WHERE id = ?`, expect.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			err = flight.ErrNotFound
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to check flight %s: %w", expect.ID, err)
		}
		err = flight.ErrConflict
		return err
	}

	if err = insertEvents(ctx, tx, expect.ID, events); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flight update: %w", err)
	}
	return nil
}

// Query returns flights matching filter in filter order
func (s *FlightStorage) Query(ctx context.Context, filter flight.Filter) ([]*flight.Flight, error) {
	query, args := buildQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	out := make([]*flight.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flights: %w", err)
	}
	return out, nil
}

// Events returns a flight's events, oldest first
func (s *FlightStorage) Events(ctx context.Context, flightID string) ([]flight.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flight_id, event_type, message, meta, created_at
		FROM flight_events
		WHERE flight_id = ?
		ORDER BY created_at ASC, id ASC
	`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []flight.Event
	for rows.Next() {
		var (
			e         flight.Event
			eventType string
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.FlightID, &eventType, &e.Message, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = flight.EventType(eventType)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		e.Meta = map[string]any{}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Meta); err != nil {
				s.logger.Warn("Failed to decode event meta",
					logger.Int64("event_id", e.ID),
					logger.Error(err))
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, flightID string, events []flight.Event) error {
	for _, e := range events {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("failed to encode event meta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flight_events (flight_id, event_type, message, meta, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, flightID, string(e.Type), e.Message, string(meta), formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert %s event: %w", e.Type, err)
		}
	}
	return nil
}

func buildQuery(filter flight.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if len(filter.ExcludeStatuses) > 0 {
		where = append(where, "status NOT IN ("+placeholders(len(filter.ExcludeStatuses))+")")
		for _, st := range filter.ExcludeStatuses {
			args = append(args, string(st))
		}
	}
	if len(filter.Phases) > 0 {
		where = append(where, "phase IN ("+placeholders(len(filter.Phases))+")")
		for _, p := range filter.Phases {
			args = append(args, string(p))
		}
	}
	if filter.InTower != nil {
		where = append(where, "is_in_tower = ?")
		args = append(args, boolToInt(*filter.InTower))
	}
	if filter.CompletedAfter != nil || filter.CompletedBefore != nil {
		var bounds []string
		if filter.CompletedAfter != nil {
			bounds = append(bounds, "completed_at >= ?")
			args = append(args, formatTime(*filter.CompletedAfter))
		}
		if filter.CompletedBefore != nil {
			bounds = append(bounds, "completed_at < ?")
			args = append(args, formatTime(*filter.CompletedBefore))
		}
		clause := "(" + strings.Join(bounds, " AND ") + ")"
		if filter.IncludeNullCompleted {
			clause = "(completed_at IS NULL OR " + clause + ")"
		}
		where = append(where, clause)
	}

	query := `SELECT ` + flightColumns + ` FROM flights`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	col := "created_at"
	switch filter.OrderBy {
	case flight.OrderTakeoffAt:
		col = "takeoff_at"
	case flight.OrderCompletedAt:
		col = "completed_at"
	}
	// Empty sort keys go last ascending and first descending
	if filter.Descending {
		query += fmt.Sprintf(` ORDER BY (%s IS NULL) DESC, %s DESC, id ASC`, col, col)
	} else {
		query += fmt.Sprintf(` ORDER BY (%s IS NULL) ASC, %s ASC, id ASC`, col, col)
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func flightArgs(f *flight.Flight) ([]any, error) {
	var pic any
	if !f.PIC.IsZero() {
		raw, err := json.Marshal(f.PIC)
		if err != nil {
			return nil, fmt.Errorf("failed to encode pic: %w", err)
		}
		pic = string(raw)
	}
	var slotOrder any
	if f.SlotOrder != nil {
		slotOrder = *f.SlotOrder
	}
	var direction any
	if f.Direction != "" {
		direction = string(f.Direction)
	}
	return []any{
		f.ID, f.AircraftID, pic, f.StudentID, nullString(f.InstructorID), f.TypeOfFlight, slotOrder,
		nullString(f.RunwayInUse), string(f.Status), string(f.Phase), nullString(f.GroundPosition),
		nullFloat(f.RadialDeg), nullFloat(f.DistanceNM), nullFloat(f.AltitudeFt),
		direction, f.GoAroundCount, f.LandingCount, boolToInt(f.IsInTower),
		formatTime(f.CreatedAt), formatTimePtr(f.StartedAt), formatTimePtr(f.PushedToTowerAt),
		formatTimePtr(f.TakeoffAt), formatTimePtr(f.LastLandedAt), formatTimePtr(f.CompletedAt),
		formatTime(f.UpdatedAt), f.Version,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlight(sc scanner) (*flight.Flight, error) {
	var (
		f                                    flight.Flight
		pic, instructorID, runway, groundPos sql.NullString
		direction                            sql.NullString
		slotOrder                            sql.NullInt64
		radial, distance, altitude           sql.NullFloat64
		status, phase                        string
		inTower                              int
		createdAt, updatedAt                 string
		startedAt, pushedAt, takeoffAt       sql.NullString
		landedAt, completedAt                sql.NullString
	)
	err := sc.Scan(
		&f.ID, &f.AircraftID, &pic, &f.StudentID, &instructorID, &f.TypeOfFlight, &slotOrder,
		&runway, &status, &phase, &groundPos, &radial, &distance, &altitude,
		&direction, &f.GoAroundCount, &f.LandingCount, &inTower, &createdAt, &startedAt,
		&pushedAt, &takeoffAt, &landedAt, &completedAt, &updatedAt, &f.Version,
	)
	if err != nil {
		return nil, err
	}

	if pic.Valid && pic.String != "" {
		if err := json.Unmarshal([]byte(pic.String), &f.PIC); err != nil {
			// Free text written by hand is not valid JSON
			f.PIC = flight.TextPIC(pic.String)
		}
	}
	f.InstructorID = stringPtr(instructorID)
	f.RunwayInUse = stringPtr(runway)
	f.GroundPosition = stringPtr(groundPos)
	if slotOrder.Valid {
		v := int(slotOrder.Int64)
		f.SlotOrder = &v
	}
	f.RadialDeg = floatPtr(radial)
	f.DistanceNM = floatPtr(distance)
	f.AltitudeFt = floatPtr(altitude)
	f.Direction = flight.Direction(direction.String)
	f.Status = flight.Status(status)
	f.Phase = flight.Phase(phase)
	f.IsInTower = inTower != 0

	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	for _, t := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&f.StartedAt, startedAt},
		{&f.PushedToTowerAt, pushedAt},
		{&f.TakeoffAt, takeoffAt},
		{&f.LastLandedAt, landedAt},
		{&f.CompletedAt, completedAt},
	} {
		if *t.dst, err = parseNullTime(t.src); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
