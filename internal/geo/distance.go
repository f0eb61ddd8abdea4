// Package geo ranks workers by great-circle distance from an emergency.
package geo

import (
	"fmt"
	"math"

	apperrors "github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects coordinates outside the WGS84 ranges.
func (p Point) Validate() error {
	return ValidateCoordinates(p.Lat, p.Lng)
}

// ValidateCoordinates reports a validation error for latitudes outside [-90, 90]
// or longitudes outside [-180, 180].
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperrors.NewValidation(fmt.Sprintf("latitude %v must be between -90 and 90", lat))
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return apperrors.NewValidation(fmt.Sprintf("longitude %v must be between -180 and 180", lng))
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// RoundKm rounds a distance to two decimals.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
