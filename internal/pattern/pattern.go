// Package pattern holds the static circuit and approach geometry for the two
// runway configurations of the airfield. Radials are measured from the VOR.
package pattern

// Runway identifiers
const (
	Runway04 = "04"
	Runway22 = "22"
)

// Leg names of the circuit pattern
const (
	Upwind    = "upwind"
	Crosswind = "crosswind"
	Deadside  = "deadside"
	Downwind  = "downwind"
	Base      = "base"
	Final     = "final"
)

// Coarse groups a leg belongs to
const (
	GroupAirborne = "airborne"
	GroupApproach = "approach"
)

// Directions relative to the VOR
const (
	Inbound  = "inbound"
	Outbound = "outbound"
)

// LegSpec describes one leg of the circuit for a runway
type LegSpec struct {
	Leg               string  `json:"leg"`
	RadialDeg         float64 `json:"radial_deg"`
	HeadingDeg        float64 `json:"heading_deg"`
	DefaultDistanceNM float64 `json:"default_distance_nm"`
	DefaultAltitudeFt float64 `json:"default_altitude_ft"`
	InboundOutbound   string  `json:"inbound_outbound"`
	Group             string  `json:"group"`
	Label             string  `json:"label"`
}

// Phase is the flight phase a report on this leg puts the aircraft into
func (l LegSpec) Phase() string {
	return l.Leg
}

var legOrder = []string{Upwind, Crosswind, Deadside, Downwind, Base, Final}

// Right-hand circuit for RWY 22
var circuit22 = map[string]LegSpec{
	Upwind:    {Upwind, 225, 225, 3, 2000, Outbound, GroupAirborne, "Upwind"},
	Deadside:  {Deadside, 225, 45, 3, 2000, Outbound, GroupAirborne, "Deadside"},
	Crosswind: {Crosswind, 225, 135, 3, 2000, Outbound, GroupAirborne, "Crosswind"},
	Downwind:  {Downwind, 45, 45, 3, 2000, Outbound, GroupAirborne, "Downwind"},
	Base:      {Base, 315, 315, 3, 1800, Outbound, GroupApproach, "Base"},
	Final:     {Final, 225, 225, 2, 1200, Inbound, GroupApproach, "Final"},
}

// Right-hand circuit for RWY 04
var circuit04 = map[string]LegSpec{
	Upwind:    {Upwind, 45, 45, 3, 2000, Outbound, GroupAirborne, "Upwind"},
	Deadside:  {Deadside, 45, 315, 3, 2000, Outbound, GroupAirborne, "Deadside"},
	Crosswind: {Crosswind, 45, 315, 3, 2000, Outbound, GroupAirborne, "Crosswind"},
	Downwind:  {Downwind, 225, 225, 3, 2000, Outbound, GroupAirborne, "Downwind"},
	Base:      {Base, 135, 135, 3, 1800, Outbound, GroupApproach, "Base"},
	Final:     {Final, 45, 45, 2, 1200, Inbound, GroupApproach, "Final"},
}

var circuits = map[string]map[string]LegSpec{
	Runway04: circuit04,
	Runway22: circuit22,
}

// LegNames returns the circuit legs in flying order
func LegNames() []string {
	return append([]string(nil), legOrder...)
}

// Runways returns the supported runway identifiers
func Runways() []string {
	return []string{Runway04, Runway22}
}

// IsRunway reports whether rwy is a supported runway identifier
func IsRunway(rwy string) bool {
	_, ok := circuits[rwy]
	return ok
}

// IsLeg reports whether leg names a circuit leg
func IsLeg(leg string) bool {
	_, ok := circuit22[leg]
	return ok
}

// For looks up the leg specification for a runway. ok is false for an unknown
// runway or leg and callers fall back to manual entry.
func For(runway, leg string) (spec LegSpec, ok bool) {
	legs, ok := circuits[runway]
	if !ok {
		return LegSpec{}, false
	}
	spec, ok = legs[leg]
	return spec, ok
}

// Legs returns the circuit legs of a runway in flying order
func Legs(runway string) []LegSpec {
	legs, ok := circuits[runway]
	if !ok {
		return nil
	}
	out := make([]LegSpec, 0, len(legOrder))
	for _, name := range legOrder {
		out = append(out, legs[name])
	}
	return out
}
