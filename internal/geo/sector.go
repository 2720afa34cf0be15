package geo

import "math"

// Unknown is returned when a radial cannot be placed in a sector
const Unknown = "UNKNOWN"

type sector struct {
	name   string
	centre float64
}

// Sector centres used for position-report labels. Order matters: the first
// sector within half a sector width wins.
var sectors = []sector{
	{"N", 5},
	{"NE", 45},
	{"E", 85},
	{"SE", 135},
	{"S", 185},
	{"SW", 225},
	{"W", 265},
	{"NW", 315},
}

// SectorName labels a radial with a compass sector, or UNKNOWN when the radial
// is missing or falls into a gap between sector centres.
func SectorName(radial *float64) string {
	if radial == nil || math.IsNaN(*radial) {
		return Unknown
	}
	r := NormalizeBearing(*radial)
	for _, s := range sectors {
		diff := math.Abs(r - s.centre)
		if diff < 22.5 || diff > 337.5 {
			return s.name
		}
	}
	return Unknown
}
