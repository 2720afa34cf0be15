package geo

import (
	"math"
)

// Constants
const (
	EarthRadiusM = 6371000.0 // Mean spherical earth radius (m)
	MetersPerNM  = 1852.0    // Meters in one nautical mile
	FeetToMeters = 0.3048

	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// LatLon is a geographic position in decimal degrees
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polar is a position relative to a reference point (the VOR)
type Polar struct {
	RadialDeg  float64 `json:"radial_deg"`
	DistanceNM float64 `json:"distance_nm"`
}

// NMToMeters converts nautical miles to meters
func NMToMeters(nm float64) float64 {
	return nm * MetersPerNM
}

// MetersToNM converts meters to nautical miles
func MetersToNM(m float64) float64 {
	return m / MetersPerNM
}

// DestinationPoint solves the direct problem on a spherical earth: starting at
// (lat, lon) and travelling distanceMeters along the initial bearing, where do
// we end up?
//
// Bearings are not range checked. Any real value works and b, b+360, b-720 all
// produce the same point. A negative distance travels along the reciprocal.
// NaN inputs give NaN outputs.
func DestinationPoint(lat, lon, bearingDeg, distanceMeters float64) LatLon {
	phi1 := lat * degToRad
	lambda1 := lon * degToRad
	theta := bearingDeg * degToRad
	delta := distanceMeters / EarthRadiusM

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*sinPhi2,
	)

	return LatLon{
		Lat: phi2 * radToDeg,
		Lon: normalizeLongitude(lambda2 * radToDeg),
	}
}

// ConvertPolarToLatLon places a radial/distance report relative to ref
func ConvertPolarToLatLon(ref LatLon, radialDeg, distanceNM float64) LatLon {
	return DestinationPoint(ref.Lat, ref.Lon, radialDeg, NMToMeters(distanceNM))
}

// PolarFromLatLon is the inverse mapping: the radial and distance of point as
// seen from ref. The radial is normalized into [0, 360).
func PolarFromLatLon(ref, point LatLon) Polar {
	return Polar{
		RadialDeg:  InitialBearing(ref, point),
		DistanceNM: MetersToNM(Haversine(ref, point)),
	}
}

// Haversine returns the great-circle distance between a and b in meters
func Haversine(a, b LatLon) float64 {
	phi1 := a.Lat * degToRad
	phi2 := b.Lat * degToRad
	dPhi := (b.Lat - a.Lat) * degToRad
	dLambda := (b.Lon - a.Lon) * degToRad

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// InitialBearing returns the initial great-circle bearing from a to b in degrees
func InitialBearing(a, b LatLon) float64 {
	phi1 := a.Lat * degToRad
	phi2 := b.Lat * degToRad
	dLambda := (b.Lon - a.Lon) * degToRad

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeBearing(math.Atan2(y, x) * radToDeg)
}

// NormalizeBearing maps any bearing into [0, 360)
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// ReciprocalBearing returns the opposite bearing
func ReciprocalBearing(deg float64) float64 {
	return NormalizeBearing(deg + 180)
}

func normalizeLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
