package ridehail

import (
	"math"
	"math/rand"
)

// Bounding box for generated pickups and dropoffs.
const (
	MinLat = 37.7
	MaxLat = 37.8
	MinLng = -122.5
	MaxLng = -122.4
)

// Location is a point on the map.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RandomLocation returns a uniformly random point inside the bounding box,
// with both coordinates rounded to 5 decimal places.
func RandomLocation(rng *rand.Rand) Location {
	return Location{
		Lat: round5(MinLat + rng.Float64()*(MaxLat-MinLat)),
		Lng: round5(MinLng + rng.Float64()*(MaxLng-MinLng)),
	}
}

// round5 rounds to 5 decimals. The box edges have at most 5 decimals, so
// rounding never leaves the box.
func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
