package geo

import (
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// MagneticVariation calculates the magnetic declination for a given position and time.
// Returns declination in degrees (+East, -West), or 0 if the model can't be evaluated.
func MagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*FeetToMeters)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}

// MagneticToTrue converts a magnetic bearing to a true bearing given the
// local declination (+East)
func MagneticToTrue(magneticDeg, declinationDeg float64) float64 {
	return NormalizeBearing(magneticDeg + declinationDeg)
}
