package flight

import (
	"time"
)

// Status is the lifecycle level state of a flight
type Status string

// Flight statuses
const (
	StatusDraft     Status = "draft"
	StatusReady     Status = "ready"
	StatusTower     Status = "tower"
	StatusAir       Status = "air"
	StatusCompleted Status = "completed"
)

// Phase is the ground operations level state of a flight
type Phase string

// Flight phases
const (
	PhaseOnGround  Phase = "on_ground"
	PhaseTaxi      Phase = "taxi"
	PhaseAirborne  Phase = "airborne"
	PhaseUpwind    Phase = "upwind"
	PhaseCrosswind Phase = "crosswind"
	PhaseDownwind  Phase = "downwind"
	PhaseDeadside  Phase = "deadside"
	PhaseBase      Phase = "base"
	PhaseFinal     Phase = "final"
	PhaseApproach  Phase = "approach"
	PhaseLanding   Phase = "landing"
	PhaseShutdown  Phase = "shutdown"
)

// IsAirborne reports whether the phase is one a flight can be in while status=air
func (p Phase) IsAirborne() bool {
	switch p {
	case PhaseAirborne, PhaseUpwind, PhaseCrosswind, PhaseDownwind, PhaseDeadside,
		PhaseBase, PhaseFinal, PhaseApproach:
		return true
	}
	return false
}

// Ground positions a flight can taxi to
const (
	PositionApron = "apron"
)

// TaxiPoints is the set of legal taxi destinations
var TaxiPoints = []string{PositionApron, "P1", "P2", "P3", "P4", "P5", "P6"}

// IsTaxiPoint reports whether p is a legal taxi destination
func IsTaxiPoint(p string) bool {
	for _, tp := range TaxiPoints {
		if tp == p {
			return true
		}
	}
	return false
}

// Direction of travel relative to the VOR
type Direction string

// Directions
const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == Inbound || d == Outbound
}

// Flight is one training or operational sortie
type Flight struct {
	ID             string    `json:"id"`
	AircraftID     string    `json:"aircraft_id"`
	PIC            PIC       `json:"pic"`
	StudentID      string    `json:"student_id"` // ground-incharge who created the slot
	InstructorID   *string   `json:"instructor_id"`
	TypeOfFlight   string    `json:"type_of_flight"`
	SlotOrder      *int      `json:"slot_order"`
	RunwayInUse    *string   `json:"runway_in_use"`
	Status         Status    `json:"status"`
	Phase          Phase     `json:"phase"`
	GroundPosition *string   `json:"ground_position"`
	RadialDeg      *float64  `json:"radial_deg"`
	DistanceNM     *float64  `json:"distance_nm"`
	AltitudeFt     *float64  `json:"altitude_ft"`
	Direction      Direction `json:"inbound_outbound"`
	GoAroundCount  int       `json:"go_around_count"`
	LandingCount   int       `json:"landing_count"`
	IsInTower      bool      `json:"is_in_tower"`

	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at"`
	PushedToTowerAt *time.Time `json:"pushed_to_tower_at"`
	TakeoffAt       *time.Time `json:"takeoff_at"`
	LastLandedAt    *time.Time `json:"last_landed_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Version increases by one with every committed transition
	Version int64 `json:"version"`
}

// IsCircuitTraining reports whether the flight is a CL sortie
func (f *Flight) IsCircuitTraining() bool {
	return f.TypeOfFlight == TypeCircuit
}

// HasPosition reports whether the full position triple is present
func (f *Flight) HasPosition() bool {
	return f.RadialDeg != nil && f.DistanceNM != nil && f.AltitudeFt != nil
}

// TypeCircuit is the type-of-flight code for circuit training
const TypeCircuit = "CL"

// EventType tags a flight event
type EventType string

// Event types
const (
	EventCreated        EventType = "created"
	EventSlotReady      EventType = "slot_ready"
	EventPushedToTower  EventType = "pushed_to_tower"
	EventStart          EventType = "start"
	EventTaxi           EventType = "taxi"
	EventTakeoff        EventType = "takeoff"
	EventAirborne       EventType = "airborne"
	EventPositionReport EventType = "position_report"
	EventGoAround       EventType = "go_around"
	EventLanding        EventType = "landing_recorded"
	EventShutdown       EventType = "shutdown"
	EventCompleted      EventType = "completed"
)

// Event is an immutable audit record of one transition
type Event struct {
	ID        int64          `json:"id"`
	FlightID  string         `json:"flight_id"`
	Type      EventType      `json:"event_type"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}

// ChangeType is the kind of row change carried by the change feed
type ChangeType string

// Change types
const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one flight row change, as a realtime feed would carry it
type Change struct {
	Type   ChangeType `json:"type"`
	Flight *Flight    `json:"flight"`
	Events []Event    `json:"events,omitempty"`
}
