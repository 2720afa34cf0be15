package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var gondia = LatLon{Lat: 21.5268, Lon: 80.2903}

func TestDestinationPointZeroDistanceIsIdentity(t *testing.T) {
	points := []LatLon{gondia, {0, 0}, {-33.9, 151.2}, {89.9, -179.5}, {-60, 10}}
	for _, p := range points {
		for _, b := range []float64{0, 45, 137.5, 270, 359.9, -90, 725} {
			got := DestinationPoint(p.Lat, p.Lon, b, 0)
			assert.InDelta(t, p.Lat, got.Lat, 1e-9, "lat for %v bearing %v", p, b)
			assert.InDelta(t, p.Lon, got.Lon, 1e-9, "lon for %v bearing %v", p, b)
		}
	}
}

func TestDestinationPointBearingPeriodicity(t *testing.T) {
	for _, b := range []float64{0, 30, 90, 181, 225, 315} {
		for _, d := range []float64{100, 5556, 18520, 250000} {
			base := DestinationPoint(gondia.Lat, gondia.Lon, b, d)
			plus := DestinationPoint(gondia.Lat, gondia.Lon, b+360, d)
			minus := DestinationPoint(gondia.Lat, gondia.Lon, b-720, d)
			assert.InDelta(t, base.Lat, plus.Lat, 1e-9)
			assert.InDelta(t, base.Lon, plus.Lon, 1e-9)
			assert.InDelta(t, base.Lat, minus.Lat, 1e-9)
			assert.InDelta(t, base.Lon, minus.Lon, 1e-9)
		}
	}
}

func TestDestinationPointNorthAlongMeridian(t *testing.T) {
	// One degree of arc on a 6371 km sphere is ~111.195 km
	got := DestinationPoint(0, 0, 0, 111194.93)
	assert.InDelta(t, 1.0, got.Lat, 1e-4)
	assert.InDelta(t, 0.0, got.Lon, 1e-9)
}

func TestDestinationPointPropagatesNaN(t *testing.T) {
	got := DestinationPoint(gondia.Lat, gondia.Lon, math.NaN(), 1000)
	assert.True(t, math.IsNaN(got.Lat) || math.IsNaN(got.Lon))
}

func TestConvertPolarToLatLonRoundTrip(t *testing.T) {
	for _, radial := range []float64{5, 45, 135, 225, 315} {
		for _, nm := range []float64{0.5, 2, 3, 10, 25} {
			p := ConvertPolarToLatLon(gondia, radial, nm)
			back := PolarFromLatLon(gondia, p)
			assert.InDelta(t, radial, back.RadialDeg, 1e-6)
			assert.InDelta(t, nm, back.DistanceNM, 1e-6)
		}
	}
}

func TestConvertPolarToLatLonMatchesMeters(t *testing.T) {
	a := ConvertPolarToLatLon(gondia, 45, 3)
	b := DestinationPoint(gondia.Lat, gondia.Lon, 45, 3*1852)
	assert.Equal(t, a, b)
}

func TestNMConversions(t *testing.T) {
	assert.Equal(t, 1852.0, NMToMeters(1))
	assert.InDelta(t, 2.5, MetersToNM(4630), 1e-12)
}

func TestNormalizeBearing(t *testing.T) {
	cases := map[float64]float64{
		0: 0, 360: 0, 370: 10, -10: 350, -720: 0, 359.5: 359.5,
	}
	for in, want := range cases {
		assert.InDelta(t, want, NormalizeBearing(in), 1e-12, "input %v", in)
	}
	assert.Equal(t, 45.0, ReciprocalBearing(225))
}

func TestSectorName(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Equal(t, Unknown, SectorName(nil))
	assert.Equal(t, "N", SectorName(f(0)))
	assert.Equal(t, "N", SectorName(f(350)))
	assert.Equal(t, "NE", SectorName(f(45)))
	assert.Equal(t, "SW", SectorName(f(225)))
	assert.Equal(t, "SW", SectorName(f(-135)))
	assert.Equal(t, "NW", SectorName(f(315)))
	assert.Equal(t, "E", SectorName(f(100)))
	assert.Equal(t, Unknown, SectorName(f(math.NaN())))
}

func TestMagneticHelpers(t *testing.T) {
	assert.Equal(t, 5.0, MagneticToTrue(359, 6))
	assert.Equal(t, 358.0, MagneticToTrue(2, -4))

	d := MagneticVariation(gondia.Lat, gondia.Lon, 1000, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, math.IsNaN(d))
	assert.Less(t, math.Abs(d), 30.0)
}
