package pattern

import "fmt"

// Approach phase tags used for non-circuit reports
const (
	TagInitial  = "initial"
	TagCircuit  = "circuit"
	TagApproach = "approach"
	TagBase     = "base"
	TagFinal    = "final"
	TagLanding  = "landing"
)

// Envelope bounds a position report for one approach phase. Nil limits are not checked.
type Envelope struct {
	Tag           string   `json:"tag"`
	Name          string   `json:"name"`
	RadialDeg     float64  `json:"radial_deg"`
	HeadingDeg    float64  `json:"heading_deg"`
	MinDistanceNM *float64 `json:"min_distance_nm,omitempty"`
	MaxDistanceNM *float64 `json:"max_distance_nm,omitempty"`
	MinAltitudeFt *float64 `json:"min_altitude_ft,omitempty"`
	MaxAltitudeFt *float64 `json:"max_altitude_ft,omitempty"`
	Inbound       bool     `json:"inbound,omitempty"`
}

// Check returns a description of each limit the report falls outside of
func (e Envelope) Check(distanceNM, altitudeFt float64) []string {
	var out []string
	if e.MaxDistanceNM != nil && distanceNM > *e.MaxDistanceNM {
		out = append(out, fmt.Sprintf("distance %.1fnm above %s max %.1fnm", distanceNM, e.Name, *e.MaxDistanceNM))
	}
	if e.MinDistanceNM != nil && distanceNM < *e.MinDistanceNM {
		out = append(out, fmt.Sprintf("distance %.1fnm below %s min %.1fnm", distanceNM, e.Name, *e.MinDistanceNM))
	}
	if e.MaxAltitudeFt != nil && altitudeFt > *e.MaxAltitudeFt {
		out = append(out, fmt.Sprintf("altitude %.0fft above %s max %.0fft", altitudeFt, e.Name, *e.MaxAltitudeFt))
	}
	if e.MinAltitudeFt != nil && altitudeFt < *e.MinAltitudeFt {
		out = append(out, fmt.Sprintf("altitude %.0fft below %s min %.0fft", altitudeFt, e.Name, *e.MinAltitudeFt))
	}
	return out
}

func f(v float64) *float64 { return &v }

var tagOrder = []string{TagInitial, TagCircuit, TagApproach, TagBase, TagFinal, TagLanding}

var envelopes = map[string]map[string]Envelope{
	Runway22: {
		TagInitial:  {Tag: TagInitial, Name: "Initial", RadialDeg: 225, HeadingDeg: 225, MaxDistanceNM: f(10), MaxAltitudeFt: f(2500)},
		TagCircuit:  {Tag: TagCircuit, Name: "Circuit", RadialDeg: 225, HeadingDeg: 225, MaxDistanceNM: f(5), MaxAltitudeFt: f(2000)},
		TagApproach: {Tag: TagApproach, Name: "Approach", RadialDeg: 45, HeadingDeg: 45, MaxDistanceNM: f(5), MaxAltitudeFt: f(2000)},
		TagBase:     {Tag: TagBase, Name: "Base", RadialDeg: 315, HeadingDeg: 315, MaxDistanceNM: f(5), MaxAltitudeFt: f(1800)},
		TagFinal:    {Tag: TagFinal, Name: "Final", RadialDeg: 225, HeadingDeg: 225, MinAltitudeFt: f(1000), MaxAltitudeFt: f(1500), Inbound: true},
		TagLanding:  {Tag: TagLanding, Name: "Landing", RadialDeg: 225, HeadingDeg: 225, MaxDistanceNM: f(2), MaxAltitudeFt: f(500)},
	},
	Runway04: {
		TagInitial:  {Tag: TagInitial, Name: "Initial", RadialDeg: 45, HeadingDeg: 45, MaxDistanceNM: f(10), MaxAltitudeFt: f(2500)},
		TagCircuit:  {Tag: TagCircuit, Name: "Circuit", RadialDeg: 45, HeadingDeg: 45, MaxDistanceNM: f(5), MaxAltitudeFt: f(2000)},
		TagApproach: {Tag: TagApproach, Name: "Approach", RadialDeg: 225, HeadingDeg: 225, MaxDistanceNM: f(5), MaxAltitudeFt: f(2000)},
		TagBase:     {Tag: TagBase, Name: "Base", RadialDeg: 135, HeadingDeg: 135, MaxDistanceNM: f(5), MaxAltitudeFt: f(1800)},
		TagFinal:    {Tag: TagFinal, Name: "Final", RadialDeg: 45, HeadingDeg: 45, MinAltitudeFt: f(1000), MaxAltitudeFt: f(1500), Inbound: true},
		TagLanding:  {Tag: TagLanding, Name: "Landing", RadialDeg: 45, HeadingDeg: 45, MaxDistanceNM: f(2), MaxAltitudeFt: f(500)},
	},
}

// IsTag reports whether tag names an approach envelope
func IsTag(tag string) bool {
	_, ok := envelopes[Runway22][tag]
	return ok
}

// EnvelopeFor returns the approach envelope of a runway for one phase tag
func EnvelopeFor(runway, tag string) (Envelope, bool) {
	byTag, ok := envelopes[runway]
	if !ok {
		return Envelope{}, false
	}
	e, ok := byTag[tag]
	return e, ok
}

// Envelopes returns all envelopes of a runway in approach order
func Envelopes(runway string) []Envelope {
	byTag, ok := envelopes[runway]
	if !ok {
		return nil
	}
	out := make([]Envelope, 0, len(tagOrder))
	for _, tag := range tagOrder {
		out = append(out, byTag[tag])
	}
	return out
}

// DisplayPhase returns the envelope name for a phase that is also an
// approach tag on the runway, otherwise the phase itself
func DisplayPhase(phase, runway string) string {
	if e, ok := envelopes[runway][phase]; ok {
		return e.Name
	}
	return phase
}
