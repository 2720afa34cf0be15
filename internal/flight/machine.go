package flight

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/airfield-ops/internal/geo"
	"github.com/yegors/airfield-ops/internal/pattern"
)

// Operation names, as used in errors and logs
const (
	OpCreateDraft      = "create draft"
	OpMarkReady        = "mark ready"
	OpPushToTower      = "push to tower"
	OpStart            = "start"
	OpTaxiToPoint      = "taxi to point"
	OpTakeoff          = "record takeoff"
	OpPosition         = "record position"
	OpGoAround         = "record go-around"
	OpLanding          = "record landing"
	OpTaxiAfterLanding = "taxi after landing"
	OpShutdown         = "record shutdown"
)

// After-landing routing choices
const (
	AfterLandingCircuit = "circuit"
	AfterLandingApron   = "apron"
)

// The functions below are the transition graph. Each takes the current row
// by value and returns the next row plus the events to append; the caller
// commits both or neither. A returned error means nothing changed.

// DraftInput carries the fields ground crew supply for a new slot
type DraftInput struct {
	AircraftID       string  `json:"aircraft_id"`
	PIC              PIC     `json:"pic"`
	GroundInchargeID string  `json:"ground_incharge_id"`
	InstructorID     *string `json:"instructor_id,omitempty"`
	TypeOfFlight     string  `json:"type_of_flight,omitempty"`
	SlotOrder        *int    `json:"slot_order,omitempty"`
}

// NewDraft builds a draft flight on the ground
func NewDraft(id string, in DraftInput, now time.Time) (Flight, []Event, error) {
	var missing []string
	if strings.TrimSpace(in.AircraftID) == "" {
		missing = append(missing, "aircraft_id")
	}
	if strings.TrimSpace(in.GroundInchargeID) == "" {
		missing = append(missing, "ground_incharge_id")
	}
	if len(missing) > 0 {
		return Flight{}, nil, invalid("aircraft and ground incharge are required", missing...)
	}

	f := Flight{
		ID:           id,
		AircraftID:   in.AircraftID,
		PIC:          in.PIC,
		StudentID:    in.GroundInchargeID,
		InstructorID: in.InstructorID,
		TypeOfFlight: in.TypeOfFlight,
		SlotOrder:    in.SlotOrder,
		Status:       StatusDraft,
		Phase:        PhaseOnGround,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}

	meta := map[string]any{
		"aircraft_id":        in.AircraftID,
		"ground_incharge_id": in.GroundInchargeID,
		"type_of_flight":     in.TypeOfFlight,
	}
	if !in.PIC.IsZero() {
		meta["pic"] = in.PIC.DisplayName()
	}
	if in.InstructorID != nil {
		meta["instructor_id"] = *in.InstructorID
	}
	if in.SlotOrder != nil {
		meta["slot_order"] = *in.SlotOrder
	}
	return f, []Event{event(f, EventCreated, "Slot created", meta, now)}, nil
}

// MarkReady promotes a draft to the ready queue
func MarkReady(f Flight, now time.Time) (Flight, []Event, error) {
	if f.Status != StatusDraft {
		return f, nil, precondition(OpMarkReady, &f, "status=draft")
	}
	f.Status = StatusReady
	return touch(f, now), []Event{event(f, EventSlotReady, "Slot marked ready", nil, now)}, nil
}

// PushToTower hands a ready flight to tower control, snapshotting the runway in use
func PushToTower(f Flight, now time.Time, runway string) (Flight, []Event, error) {
	if f.Status != StatusReady {
		return f, nil, precondition(OpPushToTower, &f, "status=ready")
	}
	f.Status = StatusTower
	f.IsInTower = true
	f.PushedToTowerAt = timePtr(now)
	meta := map[string]any{}
	if runway != "" {
		f.RunwayInUse = strPtr(runway)
		meta["runway_in_use"] = runway
	}
	return touch(f, now), []Event{event(f, EventPushedToTower, "Flight pushed to tower", meta, now)}, nil
}

// Start records engine start, moving the flight from on_ground to taxi
func Start(f Flight, now time.Time) (Flight, []Event, error) {
	if f.Status != StatusTower || f.Phase != PhaseOnGround {
		return f, nil, precondition(OpStart, &f, "status=tower and phase=on_ground")
	}
	f.Phase = PhaseTaxi
	if f.StartedAt == nil {
		f.StartedAt = timePtr(now)
	}
	return touch(f, now), []Event{event(f, EventStart, "Started by operator", nil, now)}, nil
}

// TaxiToPoint assigns a holding point or the apron. Any point is reachable
// from any other in one step.
func TaxiToPoint(f Flight, now time.Time, point string) (Flight, []Event, error) {
	if !IsTaxiPoint(point) {
		return f, nil, invalid(fmt.Sprintf("invalid taxi point %q", point), "point")
	}
	if !f.IsInTower || f.Status != StatusTower {
		return f, nil, precondition(OpTaxiToPoint, &f, "in tower on the ground")
	}
	f.GroundPosition = strPtr(point)
	f.Phase = PhaseTaxi
	meta := map[string]any{"point": point}
	return touch(f, now), []Event{event(f, EventTaxi, "Taxi hold-short: "+point, meta, now)}, nil
}

// RecordTakeoff puts a tower flight into the air
func RecordTakeoff(f Flight, now time.Time) (Flight, []Event, error) {
	if f.Status != StatusTower {
		return f, nil, precondition(OpTakeoff, &f, "status=tower")
	}
	meta := map[string]any{}
	if f.GroundPosition != nil {
		meta["from"] = *f.GroundPosition
	}
	f.Status = StatusAir
	f.Phase = PhaseAirborne
	f.TakeoffAt = timePtr(now)
	f.GroundPosition = nil
	f = touch(f, now)
	return f, []Event{
		event(f, EventTakeoff, "Takeoff", meta, now),
		event(f, EventAirborne, "Airborne", nil, now),
	}, nil
}

// PositionReport is a radial/distance/altitude report from an airborne flight.
// When Leg is set, missing values are prefilled from the circuit pattern of
// the runway in use and the flight phase moves to that leg.
type PositionReport struct {
	RadialDeg  *float64  `json:"radial_deg"`
	DistanceNM *float64  `json:"distance_nm"`
	AltitudeFt *float64  `json:"altitude_ft"`
	Direction  Direction `json:"direction,omitempty"`
	Leg        string    `json:"leg,omitempty"`
	PhaseTag   string    `json:"phase_tag,omitempty"`
}

// RecordPosition applies a position report
func RecordPosition(f Flight, now time.Time, rep PositionReport, runway string) (Flight, []Event, error) {
	meta := map[string]any{}

	var leg *pattern.LegSpec
	if rep.Leg != "" {
		spec, ok := pattern.For(runway, rep.Leg)
		if !ok {
			return f, nil, invalid(fmt.Sprintf("no pattern for leg %q on runway %q, enter position manually", rep.Leg, runway), "leg")
		}
		leg = &spec
		if rep.RadialDeg == nil {
			rep.RadialDeg = floatPtr(spec.RadialDeg)
		}
		if rep.DistanceNM == nil {
			rep.DistanceNM = floatPtr(spec.DefaultDistanceNM)
		}
		if rep.AltitudeFt == nil {
			rep.AltitudeFt = floatPtr(spec.DefaultAltitudeFt)
		}
		if rep.Direction == "" {
			rep.Direction = Direction(spec.InboundOutbound)
		}
		meta["leg"] = spec.Leg
		meta["heading_deg"] = spec.HeadingDeg
		meta["runway"] = runway
		// Quick entry is a CL workflow; other sorties are flagged
		meta["circuit_training"] = f.IsCircuitTraining()
	}

	var missing []string
	if rep.RadialDeg == nil {
		missing = append(missing, "radial_deg")
	}
	if rep.DistanceNM == nil {
		missing = append(missing, "distance_nm")
	}
	if rep.AltitudeFt == nil {
		missing = append(missing, "altitude_ft")
	}
	if len(missing) > 0 {
		return f, nil, invalid("missing required position data", missing...)
	}
	if *rep.DistanceNM < 0 {
		return f, nil, invalid("distance must not be negative", "distance_nm")
	}
	if rep.Direction != "" && !rep.Direction.Valid() {
		return f, nil, invalid(fmt.Sprintf("invalid direction %q", rep.Direction), "direction")
	}

	var envelope *pattern.Envelope
	if rep.PhaseTag != "" {
		if !pattern.IsTag(rep.PhaseTag) {
			return f, nil, invalid(fmt.Sprintf("unknown phase tag %q", rep.PhaseTag), "phase_tag")
		}
		if e, ok := pattern.EnvelopeFor(runway, rep.PhaseTag); ok {
			envelope = &e
		}
	}

	if f.Status != StatusAir {
		return f, nil, precondition(OpPosition, &f, "status=air")
	}

	radial := geo.NormalizeBearing(*rep.RadialDeg)
	sector := geo.SectorName(&radial)

	f.RadialDeg = floatPtr(radial)
	f.DistanceNM = floatPtr(*rep.DistanceNM)
	f.AltitudeFt = floatPtr(*rep.AltitudeFt)
	f.Direction = rep.Direction
	if leg != nil {
		f.Phase = Phase(leg.Phase())
	}

	meta["radial_deg"] = radial
	meta["distance_nm"] = *rep.DistanceNM
	meta["altitude_ft"] = *rep.AltitudeFt
	meta["direction"] = string(rep.Direction)
	meta["sector"] = sector
	meta["phase"] = string(f.Phase)

	eventType := EventPositionReport
	if rep.PhaseTag != "" {
		eventType = EventType(rep.PhaseTag)
		meta["phase_tag"] = rep.PhaseTag
		if envelope != nil {
			if violations := envelope.Check(*rep.DistanceNM, *rep.AltitudeFt); len(violations) > 0 {
				meta["envelope_violations"] = violations
			}
		}
	}

	msg := positionMessage(radial, *rep.DistanceNM, *rep.AltitudeFt, rep.Direction, sector, leg, rep.PhaseTag)
	return touch(f, now), []Event{event(f, eventType, msg, meta, now)}, nil
}

// RecordGoAround counts an aborted landing. The position triple is kept until
// the next report overwrites it.
func RecordGoAround(f Flight, now time.Time) (Flight, []Event, error) {
	if f.Status != StatusAir {
		return f, nil, precondition(OpGoAround, &f, "status=air")
	}
	f.GoAroundCount++
	f.Phase = PhaseAirborne
	meta := map[string]any{"go_around_count": f.GoAroundCount}
	return touch(f, now), []Event{event(f, EventGoAround, "Go-around by operator", meta, now)}, nil
}

// RecordLanding puts an airborne flight back on the ground. Status goes back
// to tower rather than a separate ground status, so ground-ops still lists it.
func RecordLanding(f Flight, now time.Time) (Flight, []Event, error) {
	if f.Status != StatusAir {
		return f, nil, precondition(OpLanding, &f, "status=air")
	}
	f.LandingCount++
	f.Status = StatusTower
	f.Phase = PhaseOnGround
	f.LastLandedAt = timePtr(now)
	f.RadialDeg, f.DistanceNM, f.AltitudeFt = nil, nil, nil
	f.Direction = ""
	meta := map[string]any{"landing_count": f.LandingCount}
	msg := fmt.Sprintf("Landing recorded (total: %d)", f.LandingCount)
	return touch(f, now), []Event{event(f, EventLanding, msg, meta, now)}, nil
}

// TaxiAfterLanding routes a landed flight either back to the circuit or to the apron
func TaxiAfterLanding(f Flight, now time.Time, location string) (Flight, []Event, error) {
	if location != AfterLandingCircuit && location != AfterLandingApron {
		return f, nil, invalid(fmt.Sprintf("invalid after-landing location %q", location), "location")
	}
	if f.Phase != PhaseOnGround || !f.IsInTower || f.Status != StatusTower {
		return f, nil, precondition(OpTaxiAfterLanding, &f, "phase=on_ground under tower control")
	}

	meta := map[string]any{"action": location}
	var msg string
	switch location {
	case AfterLandingCircuit:
		f.Phase = PhaseOnGround
		f.GroundPosition = nil
		msg = "Taxiing for another circuit"
	case AfterLandingApron:
		f.GroundPosition = strPtr(PositionApron)
		msg = "Taxiing to apron"
	}
	return touch(f, now), []Event{event(f, EventTaxi, msg, meta, now)}, nil
}

// RecordShutdown completes a flight. The apron is the only place a flight
// may shut down, and it must have come to a stop there.
func RecordShutdown(f Flight, now time.Time) (Flight, []Event, error) {
	if !f.IsInTower || f.Status != StatusTower || f.Phase != PhaseOnGround ||
		f.GroundPosition == nil || *f.GroundPosition != PositionApron {
		return f, nil, precondition(OpShutdown, &f, "phase=on_ground in tower on the apron")
	}
	meta := map[string]any{}
	if f.GroundPosition != nil {
		meta["ground_position"] = *f.GroundPosition
	}
	f.Phase = PhaseShutdown
	f.Status = StatusCompleted
	f.CompletedAt = timePtr(now)
	f = touch(f, now)
	return f, []Event{
		event(f, EventShutdown, "Shutdown", meta, now),
		event(f, EventCompleted, "Flight completed", map[string]any{
			"landing_count":   f.LandingCount,
			"go_around_count": f.GoAroundCount,
		}, now),
	}, nil
}

func positionMessage(radial, distance, altitude float64, dir Direction, sector string, leg *pattern.LegSpec, tag string) string {
	pos := fmt.Sprintf("%s°/%snm @ %sft", num(radial), num(distance), num(altitude))
	switch tag {
	case pattern.TagFinal, pattern.TagBase:
		return fmt.Sprintf("%s: %s (%s) - %s", label(tag), pos, sector, dir)
	case pattern.TagApproach, pattern.TagInitial, pattern.TagCircuit, pattern.TagLanding:
		return fmt.Sprintf("%s: %s (%s)", label(tag), pos, sector)
	}
	if leg != nil {
		return fmt.Sprintf("%s: %s (%s)", leg.Label, pos, dir)
	}
	return fmt.Sprintf("Position: %s (%s - %s)", pos, sector, dir)
}

func label(tag string) string {
	return strings.ToUpper(tag[:1]) + tag[1:]
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func event(f Flight, t EventType, msg string, meta map[string]any, now time.Time) Event {
	if meta == nil {
		meta = map[string]any{}
	}
	return Event{FlightID: f.ID, Type: t, Message: msg, Meta: meta, CreatedAt: now}
}

func touch(f Flight, now time.Time) Flight {
	f.UpdatedAt = now
	f.Version++
	return f
}

func strPtr(s string) *string { return &s }
func floatPtr(v float64) *float64 { return &v }
func timePtr(t time.Time) *time.Time { return &t }
