package flight

import (
	"context"
	"fmt"
	"time"

	"github.com/yegors/airfield-ops/internal/geo"
)

// ArchiveAfter separates recently completed flights from the archive
const ArchiveAfter = 48 * time.Hour

// DefaultArchiveLimit caps the archive projection when no limit is given
const DefaultArchiveLimit = 20

// Bucket names
const (
	BucketDraft           = "draft"
	BucketReady           = "ready"
	BucketGround          = "ground"
	BucketAir             = "air"
	BucketCompletedRecent = "completed"
	BucketArchived        = "archived"

	// BucketActive spans ground and air
	BucketActive = "active"
)

// Buckets lists bucket names in board order
var Buckets = []string{BucketDraft, BucketReady, BucketGround, BucketAir, BucketCompletedRecent, BucketArchived}

var groundPhases = []Phase{PhaseOnGround, PhaseTaxi, PhaseLanding, PhaseShutdown}

// Draft lists draft slots, newest first
func (s *Service) Draft(ctx context.Context) ([]*Flight, error) {
	return s.query(ctx, "draft", Filter{
		Statuses:   []Status{StatusDraft},
		OrderBy:    OrderCreatedAt,
		Descending: true,
	})
}

// Ready lists the tower push queue, oldest first
func (s *Service) Ready(ctx context.Context) ([]*Flight, error) {
	return s.query(ctx, "ready", Filter{
		Statuses: []Status{StatusReady},
		OrderBy:  OrderCreatedAt,
	})
}

// GroundOps lists flights on the ground under tower control, oldest first
func (s *Service) GroundOps(ctx context.Context) ([]*Flight, error) {
	inTower := true
	return s.query(ctx, "ground ops", Filter{
		ExcludeStatuses: []Status{StatusCompleted},
		Phases:          groundPhases,
		InTower:         &inTower,
		OrderBy:         OrderCreatedAt,
	})
}

// AirOps lists airborne flights in takeoff order
func (s *Service) AirOps(ctx context.Context) ([]*Flight, error) {
	return s.query(ctx, "air ops", Filter{
		Statuses: []Status{StatusAir},
		OrderBy:  OrderTakeoffAt,
	})
}

// Active lists every flight under tower control or in the air, oldest first
func (s *Service) Active(ctx context.Context) ([]*Flight, error) {
	return s.query(ctx, "active", Filter{
		Statuses: []Status{StatusTower, StatusAir},
		OrderBy:  OrderCreatedAt,
	})
}

// CompletedRecent lists flights completed within ArchiveAfter of now, newest first
func (s *Service) CompletedRecent(ctx context.Context) ([]*Flight, error) {
	cutoff := s.now().Add(-ArchiveAfter)
	return s.query(ctx, "completed recent", Filter{
		Statuses:       []Status{StatusCompleted},
		CompletedAfter: &cutoff,
		OrderBy:        OrderCompletedAt,
		Descending:     true,
	})
}

// Archived lists flights completed before the ArchiveAfter window, newest
// first. Completed rows without a completion time are archived too, so the
// two completed projections always partition the completed set.
func (s *Service) Archived(ctx context.Context, limit int) ([]*Flight, error) {
	if limit <= 0 {
		limit = DefaultArchiveLimit
	}
	cutoff := s.now().Add(-ArchiveAfter)
	return s.query(ctx, "archived", Filter{
		Statuses:             []Status{StatusCompleted},
		CompletedBefore:      &cutoff,
		IncludeNullCompleted: true,
		OrderBy:              OrderCompletedAt,
		Descending:           true,
		Limit:                limit,
	})
}

// ByBucket runs the projection with the given bucket name
func (s *Service) ByBucket(ctx context.Context, bucket string, archiveLimit int) ([]*Flight, error) {
	switch bucket {
	case BucketDraft:
		return s.Draft(ctx)
	case BucketReady:
		return s.Ready(ctx)
	case BucketGround:
		return s.GroundOps(ctx)
	case BucketAir:
		return s.AirOps(ctx)
	case BucketActive:
		return s.Active(ctx)
	case BucketCompletedRecent:
		return s.CompletedRecent(ctx)
	case BucketArchived:
		return s.Archived(ctx, archiveLimit)
	default:
		return nil, invalid(fmt.Sprintf("unknown bucket %q", bucket), "bucket")
	}
}

// Bucket classifies one flight the same way the projections do. A flight
// matching no projection gets the empty string.
func Bucket(f *Flight, now time.Time) string {
	switch f.Status {
	case StatusDraft:
		return BucketDraft
	case StatusReady:
		return BucketReady
	case StatusAir:
		return BucketAir
	case StatusCompleted:
		if f.CompletedAt != nil && !f.CompletedAt.Before(now.Add(-ArchiveAfter)) {
			return BucketCompletedRecent
		}
		return BucketArchived
	}
	if f.IsInTower && containsPhase(groundPhases, f.Phase) {
		return BucketGround
	}
	return ""
}

// Board is every projection at once, for the operations screen
type Board struct {
	Draft           []*Flight `json:"draft"`
	Ready           []*Flight `json:"ready"`
	Ground          []*Flight `json:"ground"`
	Air             []*Flight `json:"air"`
	CompletedRecent []*Flight `json:"completed"`
	Archived        []*Flight `json:"archived"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Board builds all projections
func (s *Service) Board(ctx context.Context, archiveLimit int) (*Board, error) {
	b := &Board{GeneratedAt: s.now()}
	var err error
	if b.Draft, err = s.Draft(ctx); err != nil {
		return nil, err
	}
	if b.Ready, err = s.Ready(ctx); err != nil {
		return nil, err
	}
	if b.Ground, err = s.GroundOps(ctx); err != nil {
		return nil, err
	}
	if b.Air, err = s.AirOps(ctx); err != nil {
		return nil, err
	}
	if b.CompletedRecent, err = s.CompletedRecent(ctx); err != nil {
		return nil, err
	}
	if b.Archived, err = s.Archived(ctx, archiveLimit); err != nil {
		return nil, err
	}
	return b, nil
}

// Events returns a flight's event history, oldest first
func (s *Service) Events(ctx context.Context, id string) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.store.Events(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for flight %s: %w", id, err)
	}
	return events, nil
}

// FlightLog returns the flight's history as formatted log lines
func (s *Service) FlightLog(ctx context.Context, id string) ([]string, error) {
	events, err := s.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	return FormatLog(events), nil
}

// MapReference anchors polar reports on the map
type MapReference struct {
	VOR geo.LatLon
	// DeclinationDeg is added to reported radials when they are magnetic
	DeclinationDeg float64
}

// Marker is one flight placed on the map
type Marker struct {
	FlightID   string    `json:"flight_id"`
	AircraftID string    `json:"aircraft_id"`
	PIC        string    `json:"pic"`
	Status     Status    `json:"status"`
	Phase      Phase     `json:"phase"`
	RadialDeg  float64   `json:"radial_deg"`
	DistanceNM float64   `json:"distance_nm"`
	AltitudeFt *float64  `json:"altitude_ft"`
	Direction  Direction `json:"inbound_outbound"`
	Sector     string    `json:"sector"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Color      string    `json:"color"`
	Summary    string    `json:"summary"`
}

// MapPositions projects active flights with a radial and distance onto the map
func (s *Service) MapPositions(ctx context.Context, ref MapReference) ([]Marker, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	markers := make([]Marker, 0, len(active))
	for _, f := range active {
		if f.RadialDeg == nil || f.DistanceNM == nil {
			continue
		}
		bearing := geo.MagneticToTrue(*f.RadialDeg, ref.DeclinationDeg)
		pos := geo.ConvertPolarToLatLon(ref.VOR, bearing, *f.DistanceNM)
		markers = append(markers, Marker{
			FlightID:   f.ID,
			AircraftID: f.AircraftID,
			PIC:        f.PIC.DisplayName(),
			Status:     f.Status,
			Phase:      f.Phase,
			RadialDeg:  *f.RadialDeg,
			DistanceNM: *f.DistanceNM,
			AltitudeFt: f.AltitudeFt,
			Direction:  f.Direction,
			Sector:     geo.SectorName(f.RadialDeg),
			Lat:        pos.Lat,
			Lon:        pos.Lon,
			Color:      markerColor(f.Direction),
			Summary:    f.PositionSummary(),
		})
	}
	return markers, nil
}

func markerColor(d Direction) string {
	switch d {
	case Outbound:
		return "red"
	case Inbound:
		return "green"
	}
	return "blue"
}

func (s *Service) query(ctx context.Context, name string, filter Filter) ([]*Flight, error) {
	flights, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s flights: %w", name, err)
	}
	return flights, nil
}
